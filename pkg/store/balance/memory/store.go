// Package memory implements an in-memory balance store for tests and
// ephemeral deployments.
package memory

import (
	"sync"

	"github.com/marmos91/paylink/pkg/store/balance"
)

// BalanceStore is a non-durable balance.Store held in a map.
type BalanceStore struct {
	mu       sync.Mutex
	balances map[string]int64
}

// New creates an empty in-memory store.
func New() *BalanceStore {
	return &BalanceStore{balances: make(map[string]int64)}
}

// Get returns the caller's current balance, 0 for unknown callers.
func (s *BalanceStore) Get(callerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[callerID], nil
}

// Increment adjusts the caller's balance by delta and returns the new total.
func (s *BalanceStore) Increment(callerID string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[callerID] += delta
	return s.balances[callerID], nil
}

// Close is a no-op for the in-memory store.
func (s *BalanceStore) Close() error {
	return nil
}

var _ balance.Store = (*BalanceStore)(nil)
