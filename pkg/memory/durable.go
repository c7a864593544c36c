package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/engramd/engramd/config"
	"github.com/engramd/engramd/pkg/logger"
)

// Key layout in the durable tier. Memory IDs are ULIDs, so index keys
// sort by creation time and a reverse scan yields most-recent-first.
const (
	keyMemoryPrefix = "mem:"
	keyOwnerPrefix  = "owner:"
	keySystemPrefix = "sys:"
)

// DurableStore is the authoritative tier, backed by BadgerDB. A memory
// counts as durable only once its write lands here.
type DurableStore struct {
	db  *badger.DB
	log logger.Logger
}

// NewDurableStore opens the BadgerDB at cfg.Path.
func NewDurableStore(cfg config.DurableConfig, log logger.Logger) (*DurableStore, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumVersionsToKeep > 0 {
		opts.NumVersionsToKeep = cfg.NumVersionsToKeep
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageUnavailableError{Cause: fmt.Errorf("failed to open badger at %s: %w", cfg.Path, err)}
	}

	return &DurableStore{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *DurableStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so other durable tables, like the
// pattern table, can share the same database.
func (s *DurableStore) DB() *badger.DB {
	return s.db
}

// Healthy reports whether the database is open and accepting reads.
func (s *DurableStore) Healthy() bool {
	return s.db != nil && !s.db.IsClosed()
}

// Put writes a memory and its scope index entry in one transaction.
func (s *DurableStore) Put(ctx context.Context, m *Memory) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return &SerializationError{Operation: "marshal memory", Cause: err}
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(memoryKey(m.ID), data); err != nil {
			return err
		}
		return txn.Set(indexKey(m), nil)
	})
	if err != nil {
		return wrapBadgerError(err)
	}
	return nil
}

// Get returns the memory stored under id.
func (s *DurableStore) Get(ctx context.Context, id string) (*Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m Memory
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(memoryKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, &NotFoundError{ID: id}
		}
		return nil, wrapBadgerError(err)
	}
	return &m, nil
}

// Search computes cosine similarity between query and every visible,
// embedded memory, returning the hits at or above threshold. Brute force;
// candidate IDs come from the scope indexes so private memories of other
// owners are never even loaded.
func (s *DurableStore) Search(ctx context.Context, query []float32, v Visibility, threshold float64) ([]ScoredMemory, error) {
	ids, err := s.visibleIDs(ctx, v, 0)
	if err != nil {
		return nil, err
	}

	var hits []ScoredMemory
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			item, err := txn.Get(memoryKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue // index entry ahead of the memory write
				}
				return err
			}
			var m Memory
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return &SerializationError{Operation: "unmarshal memory", Cause: err}
			}
			if m.EmbeddingPending || len(m.Embedding) == 0 {
				continue
			}
			sim := cosineSimilarity(query, m.Embedding)
			if sim >= threshold {
				hits = append(hits, ScoredMemory{Memory: &m, Similarity: sim})
			}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wrapBadgerError(err)
	}
	return hits, nil
}

// ListRecent returns up to limit visible memories, most recent first.
func (s *DurableStore) ListRecent(ctx context.Context, v Visibility, limit int) ([]*Memory, error) {
	ids, err := s.visibleIDs(ctx, v, 0)
	if err != nil {
		return nil, err
	}

	// ULIDs sort by creation time, so a descending ID sort is a
	// most-recent-first ordering.
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	var out []*Memory
	err = s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(memoryKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			var m Memory
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return &SerializationError{Operation: "unmarshal memory", Cause: err}
			}
			out = append(out, &m)
		}
		return nil
	})
	if err != nil {
		return nil, wrapBadgerError(err)
	}
	return out, nil
}

// ListPendingEmbeddings returns up to limit memories still waiting for an
// embedding, oldest first, for the backfill loop.
func (s *DurableStore) ListPendingEmbeddings(ctx context.Context, limit int) ([]*Memory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []*Memory
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyMemoryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var m Memory
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return &SerializationError{Operation: "unmarshal memory", Cause: err}
			}
			if m.EmbeddingPending {
				out = append(out, &m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapBadgerError(err)
	}
	return out, nil
}

// BumpAccess increments the access count and moves the last-access time
// forward. Applied through the write queue, never on the read path.
func (s *DurableStore) BumpAccess(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(memoryKey(id))
		if err != nil {
			return err
		}
		var m Memory
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			return &SerializationError{Operation: "unmarshal memory", Cause: err}
		}

		m.AccessCount++
		if at.After(m.LastAccessedAt) {
			m.LastAccessedAt = at
		}

		data, err := json.Marshal(&m)
		if err != nil {
			return &SerializationError{Operation: "marshal memory", Cause: err}
		}
		return txn.Set(memoryKey(id), data)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &NotFoundError{ID: id}
		}
		return wrapBadgerError(err)
	}
	return nil
}

// visibleIDs collects memory IDs from the scope indexes for v.
func (s *DurableStore) visibleIDs(ctx context.Context, v Visibility, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		if v.OwnerID != "" {
			prefix := []byte(keyOwnerPrefix + v.OwnerID + ":")
			if err := collectSuffixes(txn, prefix, limit, &ids); err != nil {
				return err
			}
		}
		if v.IncludeSystem {
			if err := collectSuffixes(txn, []byte(keySystemPrefix), limit, &ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapBadgerError(err)
	}
	return ids, nil
}

// collectSuffixes appends the portion of each key after prefix to ids.
func collectSuffixes(txn *badger.Txn, prefix []byte, limit int, ids *[]string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if limit > 0 && len(*ids) >= limit {
			return nil
		}
		key := it.Item().Key()
		*ids = append(*ids, string(bytes.TrimPrefix(key, prefix)))
	}
	return nil
}

func memoryKey(id string) []byte {
	return []byte(keyMemoryPrefix + id)
}

// indexKey returns the scope index key for m: owner-scoped for private
// memories, the shared system index otherwise.
func indexKey(m *Memory) []byte {
	if m.Type == TypePrivate {
		return []byte(keyOwnerPrefix + m.OwnerID + ":" + m.ID)
	}
	return []byte(keySystemPrefix + m.ID)
}

// wrapBadgerError maps badger failures onto the package's typed errors.
func wrapBadgerError(err error) error {
	if err == nil {
		return nil
	}
	var se *SerializationError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, badger.ErrDBClosed) || errors.Is(err, badger.ErrBlockedWrites) {
		return &StorageUnavailableError{Cause: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StorageUnavailableError{Cause: err}
}
