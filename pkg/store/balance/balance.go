// Package balance defines the quota accumulator consumed by the registry.
//
// The model is deliberately tiny: one signed 64-bit accumulator per caller
// identity. Grants increment it, payments decrement it, and a caller the
// store has never seen starts at zero. Durability matters — quotas must
// survive process restarts — so the production backend is BadgerDB; the
// memory backend exists for tests.
package balance

// Store is a durable key→accumulator map keyed by caller identity.
//
// Implementations must make Increment atomic: concurrent increments for the
// same caller must all be applied, never lost to a read-modify-write race.
type Store interface {
	// Get returns the caller's current balance. Unknown callers have
	// balance 0.
	Get(callerID string) (int64, error)

	// Increment adjusts the caller's balance by delta (negative to deduct)
	// and returns the new total.
	Increment(callerID string, delta int64) (int64, error)

	// Close releases the store's resources.
	Close() error
}
