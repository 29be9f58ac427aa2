package config

import (
	"fmt"

	"github.com/marmos91/paylink/pkg/store/balance"
	badgerstore "github.com/marmos91/paylink/pkg/store/balance/badger"
	"github.com/marmos91/paylink/pkg/store/balance/memory"
)

// CreateBalanceStore creates the caller quota store described by the
// configuration.
//
// The badger backend persists quotas across daemon restarts; the memory
// backend is for tests and throwaway deployments.
func CreateBalanceStore(cfg BalanceConfig) (balance.Store, error) {
	switch cfg.Type {
	case "badger":
		store, err := badgerstore.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open balance store at %s: %w", cfg.Path, err)
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown balance store type: %q", cfg.Type)
	}
}
