package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := New(dir)
	require.NoError(t, err)

	total, err := s.Increment("alice", 2500)
	require.NoError(t, err)
	assert.EqualValues(t, 2500, total)
	require.NoError(t, s.Close())

	// Quotas must survive process restarts.
	s, err = New(dir)
	require.NoError(t, err)
	defer s.Close()

	total, err = s.Get("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 2500, total)
}

func TestDeductBelowZeroIsStoredAsIs(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	// The store is a plain accumulator; quota floor enforcement lives in
	// the registry.
	total, err := s.Increment("alice", -100)
	require.NoError(t, err)
	assert.EqualValues(t, -100, total)
}

func TestUnknownCallerStartsAtZero(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	total, err := s.Get("nobody")
	require.NoError(t, err)
	assert.Zero(t, total)
}
