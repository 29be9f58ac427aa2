package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnknownCallerStartsAtZero(t *testing.T) {
	s := New()
	defer s.Close()

	total, err := s.Get("nobody")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIncrementAndDeduct(t *testing.T) {
	s := New()
	defer s.Close()

	total, err := s.Increment("alice", 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, total)

	total, err = s.Increment("alice", -400)
	require.NoError(t, err)
	assert.EqualValues(t, 600, total)

	total, err = s.Get("alice")
	require.NoError(t, err)
	assert.EqualValues(t, 600, total)
}

func TestCallersAreIndependent(t *testing.T) {
	s := New()
	defer s.Close()

	_, err := s.Increment("alice", 500)
	require.NoError(t, err)

	total, err := s.Get("bob")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestConcurrentIncrementsAllApply(t *testing.T) {
	s := New()
	defer s.Close()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Increment("alice", 1)
		}()
	}
	wg.Wait()

	total, err := s.Get("alice")
	require.NoError(t, err)
	assert.EqualValues(t, workers, total)
}
