// Package memory provides an in-memory Store implementation for unit testing
// and single-process deployments.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/internal/entity"
	"github.com/xraph/beacon/internal/reduce"
	beaconstore "github.com/xraph/beacon/store"
)

// compile-time interface check.
var _ beaconstore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	events []*event.Event // insertion order, so IDs ascend
	nextID int64

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return beacon.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Len returns the number of stored events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// Insert appends an event and assigns its ID.
func (s *Store) Insert(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return beacon.ErrStoreClosed
	}

	s.nextID++
	evt.ID = s.nextID
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = entity.Now()
	}
	evt.CreatedAt = evt.CreatedAt.UTC()

	s.events = append(s.events, clone(evt))
	return nil
}

// CountByType returns per-type counts since the cutoff.
func (s *Store) CountByType(_ context.Context, since time.Time) ([]event.TypeCount, error) {
	events, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return reduce.CountByType(reduce.Since(events, since)), nil
}

// TopValues returns the most frequent values of a payload field.
func (s *Store) TopValues(_ context.Context, q event.ValueQuery) ([]event.ValueCount, error) {
	if !event.ValidField(q.Field) {
		return nil, beacon.ErrInvalidQuery
	}
	events, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	matched := reduce.Since(reduce.OfType(events, q.Type), q.Since)
	return reduce.TopValues(matched, reduce.FieldKey(q.Field), q.Limit), nil
}

// TopReferrers returns the most frequent non-empty referrers.
func (s *Store) TopReferrers(_ context.Context, since time.Time, limit int) ([]event.ValueCount, error) {
	events, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return reduce.TopValues(reduce.Since(events, since), reduce.ReferrerKey, limit), nil
}

// Recent returns the newest events first.
func (s *Store) Recent(_ context.Context, limit int) ([]*event.Event, error) {
	events, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	reduce.SortByCreated(events, event.Desc)
	return cloneAll(reduce.Paginate(events, 0, limit)), nil
}

// Query returns events matching q.
func (s *Store) Query(_ context.Context, q event.Query) ([]*event.Event, error) {
	events, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return cloneAll(reduce.Query(events, q)), nil
}

// TopPairs groups events of one type by two payload fields.
func (s *Store) TopPairs(_ context.Context, q event.PairQuery) ([]event.PairCount, error) {
	if !event.ValidField(q.First) || !event.ValidField(q.Second) {
		return nil, beacon.ErrInvalidQuery
	}
	events, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	matched := reduce.Since(reduce.OfType(events, q.Type), q.Since)
	return reduce.TopPairs(matched, q.First, q.Second, q.Limit), nil
}

// Series buckets one event type by period.
func (s *Store) Series(_ context.Context, eventType string, since time.Time, g event.Granularity) ([]event.Bucket, error) {
	events, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return reduce.Series(reduce.Since(reduce.OfType(events, eventType), since), g), nil
}

// Count returns the number of events matching f.
func (s *Store) Count(_ context.Context, f event.Filter) (int64, error) {
	if f.Field != "" && !event.ValidField(f.Field) {
		return 0, beacon.ErrInvalidQuery
	}
	events, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	return int64(len(reduce.Match(events, f))), nil
}

// Sum adds up a numeric payload field across events matching f.
func (s *Store) Sum(_ context.Context, f event.Filter, field string) (float64, error) {
	if !event.ValidField(field) || (f.Field != "" && !event.ValidField(f.Field)) {
		return 0, beacon.ErrInvalidQuery
	}
	events, err := s.snapshot()
	if err != nil {
		return 0, err
	}
	return reduce.Sum(reduce.Match(events, f), field), nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// snapshot returns a copy of the event slice. Stored events are never
// mutated after insert, so sharing the pointers is safe for reads.
func (s *Store) snapshot() ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, beacon.ErrStoreClosed
	}
	out := make([]*event.Event, len(s.events))
	copy(out, s.events)
	return out, nil
}

func clone(evt *event.Event) *event.Event {
	c := *evt
	c.Data = maps.Clone(evt.Data)
	if c.Data == nil {
		c.Data = map[string]any{}
	}
	return &c
}

func cloneAll(events []*event.Event) []*event.Event {
	out := make([]*event.Event, len(events))
	for i, e := range events {
		out[i] = clone(e)
	}
	return out
}
