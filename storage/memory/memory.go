// Package memory provides a volatile near.Backend backed by a map.
package memory

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/hupe1980/near"
)

var _ near.Backend = (*Store)(nil)

// Store is an in-memory backend. Thread-safe for concurrent reads and writes.
// Records are copied on the way in and on the way out.
type Store struct {
	mu      sync.RWMutex
	records map[near.ID]near.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records: make(map[near.ID]near.Record),
	}
}

// Get returns the record stored under id.
func (s *Store) Get(ctx context.Context, id near.ID) (near.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return near.Record{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return near.Record{}, false, nil
	}
	return rec.Clone(), true, nil
}

// Put stores rec, replacing any record with the same id.
func (s *Store) Put(ctx context.Context, rec near.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.ID] = rec.Clone()
	return nil
}

// Remove deletes the record stored under id.
func (s *Store) Remove(ctx context.Context, id near.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, id)
	return nil
}

// Scan yields a snapshot of the stored records in ascending id order.
func (s *Store) Scan(ctx context.Context) iter.Seq2[near.Record, error] {
	return func(yield func(near.Record, error) bool) {
		s.mu.RLock()
		ids := slices.Sorted(maps.Keys(s.records))
		snapshot := make([]near.Record, len(ids))
		for i, id := range ids {
			snapshot[i] = s.records[id].Clone()
		}
		s.mu.RUnlock()

		for _, rec := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(near.Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
