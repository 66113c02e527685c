// Package memstore is an in-memory reading store.
//
// It implements the ingestion Writer and the query Store on a slice, reducing
// with the aggregate package. It backs the "memory" backend used for
// throwaway analysis of a file and the store-independent tests.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/xtxerr/airq/internal/errors"
	"github.com/xtxerr/airq/internal/storage/aggregate"
	"github.com/xtxerr/airq/internal/storage/query"
	"github.com/xtxerr/airq/internal/storage/types"
)

// Store holds readings in insertion order.
type Store struct {
	mu       sync.RWMutex
	readings []types.Reading
	closed   bool
}

// New creates an empty store.
func New() *Store {
	return &Store{}
}

// InsertMany appends a copy of readings. Duplicates are kept.
func (s *Store) InsertMany(ctx context.Context, readings []types.Reading) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.ErrStoreClosed
	}
	s.readings = append(s.readings, readings...)
	return len(readings), nil
}

// Find returns matching readings sorted by timestamp.
func (s *Store) Find(ctx context.Context, plan *query.Plan) (query.Cursor, error) {
	matched, err := s.match(ctx, plan.Match)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if plan.Limit > 0 && len(matched) > plan.Limit {
		matched = matched[:plan.Limit]
	}

	return &cursor{readings: matched}, nil
}

// Aggregate groups matching readings by plan.Interval and reduces every
// plan field.
func (s *Store) Aggregate(ctx context.Context, plan *query.Plan) ([]query.Group, error) {
	matched, err := s.match(ctx, plan.Match)
	if err != nil {
		return nil, err
	}

	g := aggregate.NewGrouper(plan.Interval, plan.Fields)
	g.ProcessBatch(matched)

	buckets := g.Buckets(plan.Reducer)
	groups := make([]query.Group, len(buckets))
	for i, b := range buckets {
		groups[i] = query.Group{ID: b.Interval, Values: b.Values}
	}
	return groups, nil
}

// Len returns the number of stored readings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// Close releases the readings.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.readings = nil
	return nil
}

func (s *Store) match(ctx context.Context, r types.TimeRange) ([]types.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errors.ErrStoreClosed
	}

	var matched []types.Reading
	for i := range s.readings {
		if r.Contains(s.readings[i].Timestamp) {
			matched = append(matched, s.readings[i])
		}
	}
	return matched, nil
}

type cursor struct {
	readings []types.Reading
	pos      int
}

func (c *cursor) Next() bool {
	if c.pos >= len(c.readings) {
		return false
	}
	c.pos++
	return true
}

func (c *cursor) Reading() types.Reading { return c.readings[c.pos-1] }
func (c *cursor) Err() error             { return nil }
func (c *cursor) Close() error           { return nil }
