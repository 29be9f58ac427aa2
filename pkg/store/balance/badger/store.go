// Package badger implements the balance store on BadgerDB.
package badger

import (
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/paylink/internal/logger"
	"github.com/marmos91/paylink/pkg/store/balance"
)

const keyPrefix = "balance/"

// BalanceStore is a durable balance.Store backed by a BadgerDB database.
type BalanceStore struct {
	db *badger.DB
}

// New opens (or creates) a BadgerDB database at path.
func New(path string) (*BalanceStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open balance database at %s: %w", path, err)
	}
	logger.Debug("Balance store opened", "path", path)
	return &BalanceStore{db: db}, nil
}

// Get returns the caller's current balance, 0 for unknown callers.
func (s *BalanceStore) Get(callerID string) (int64, error) {
	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(callerID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := decodeBalance(val)
			if err != nil {
				return err
			}
			total = v
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read balance for %s: %w", callerID, err)
	}
	return total, nil
}

// Increment adjusts the caller's balance by delta inside one transaction,
// so the read-modify-write is atomic even under concurrent grants and
// deductions.
func (s *BalanceStore) Increment(callerID string, delta int64) (int64, error) {
	var total int64
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key(callerID))
		if err == nil {
			err = item.Value(func(val []byte) error {
				v, err := decodeBalance(val)
				if err != nil {
					return err
				}
				total = v
				return nil
			})
			if err != nil {
				return err
			}
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		total += delta
		return txn.Set(key(callerID), encodeBalance(total))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment balance for %s: %w", callerID, err)
	}
	return total, nil
}

// Close closes the underlying database.
func (s *BalanceStore) Close() error {
	return s.db.Close()
}

func key(callerID string) []byte {
	return []byte(keyPrefix + callerID)
}

func encodeBalance(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func decodeBalance(val []byte) (int64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed balance value: %d bytes", len(val))
	}
	return int64(binary.BigEndian.Uint64(val)), nil
}

var _ balance.Store = (*BalanceStore)(nil)
