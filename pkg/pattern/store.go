package pattern

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/engramd/engramd/pkg/memory"
)

// keyPrefix namespaces the pattern table inside the shared durable
// database.
const keyPrefix = "pat:"

// Store persists patterns in the durable tier. It shares the badger
// database with the memory store under its own key prefix.
type Store struct {
	db *badger.DB
}

// NewStore wraps db as the pattern table.
func NewStore(db *badger.DB) *Store {
	return &Store{db: db}
}

// Put writes a pattern.
func (s *Store) Put(ctx context.Context, p *Pattern) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return &memory.SerializationError{Operation: "marshal pattern", Cause: err}
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(patternKey(p.ID), data)
	})
	if err != nil {
		return &memory.StorageUnavailableError{Cause: fmt.Errorf("pattern write: %w", err)}
	}
	return nil
}

// Get returns the pattern stored under id.
func (s *Store) Get(ctx context.Context, id string) (*Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var p Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(patternKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &p)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &memory.NotFoundError{ID: id}
		}
		return nil, &memory.StorageUnavailableError{Cause: err}
	}
	return &p, nil
}

// List returns every stored pattern. Used to rebuild the in-memory
// trigger index on startup.
func (s *Store) List(ctx context.Context) ([]*Pattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*Pattern
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var p Pattern
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return &memory.SerializationError{Operation: "unmarshal pattern", Cause: err}
			}
			out = append(out, &p)
		}
		return nil
	})
	if err != nil {
		var se *memory.SerializationError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &memory.StorageUnavailableError{Cause: err}
	}
	return out, nil
}

func patternKey(id string) []byte {
	return []byte(keyPrefix + id)
}
