package audit

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces audit records; record IDs sort by creation time
const keyPrefix = "audit:"

// BadgerStore keeps records in an embedded badger database
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a badger database in dir
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger audit store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func recordKey(id string) []byte {
	return []byte(keyPrefix + id)
}

func (s *BadgerStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

func (s *BadgerStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	var out []Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		// reverse iteration starts from the last key with the prefix
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(out) >= limit {
				break
			}

			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return sonic.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("failed to decode audit record %s: %w", it.Item().Key(), err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}
