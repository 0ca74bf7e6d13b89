package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/internal/entity"
	"github.com/xraph/beacon/internal/reduce"
)

// boundSlack widens score ranges so float rounding never drops a boundary
// row. Rows are filtered exactly after loading.
const boundSlack = 0.001

// eventModel is the JSON representation stored in Redis.
type eventModel struct {
	ID        int64          `json:"id"`
	Type      string         `json:"event_type"`
	Data      map[string]any `json:"event_data"`
	PageURL   string         `json:"page_url"`
	Referrer  string         `json:"referrer"`
	SessionID string         `json:"session_id"`
	UserAgent string         `json:"user_agent"`
	CreatedAt time.Time      `json:"created_at"`
}

func toEventModel(evt *event.Event) *eventModel {
	return &eventModel{
		ID:        evt.ID,
		Type:      evt.Type,
		Data:      evt.Data,
		PageURL:   evt.PageURL,
		Referrer:  evt.Referrer,
		SessionID: evt.SessionID,
		UserAgent: evt.UserAgent,
		CreatedAt: evt.CreatedAt,
	}
}

func fromEventModel(m *eventModel) *event.Event {
	data := m.Data
	if data == nil {
		data = map[string]any{}
	}
	return &event.Event{
		Entity:    entity.Entity{CreatedAt: m.CreatedAt.UTC()},
		ID:        m.ID,
		Type:      m.Type,
		Data:      data,
		PageURL:   m.PageURL,
		Referrer:  m.Referrer,
		SessionID: m.SessionID,
		UserAgent: m.UserAgent,
	}
}

// Insert stores the document and both index entries in one transaction.
func (s *Store) Insert(ctx context.Context, evt *event.Event) error {
	if s.closed.Load() {
		return beacon.ErrStoreClosed
	}

	id, err := s.rdb.Incr(ctx, keyEventSeq).Result()
	if err != nil {
		return fmt.Errorf("beacon/redis: next event id: %w", err)
	}
	evt.ID = id
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = entity.Now()
	}
	evt.CreatedAt = evt.CreatedAt.UTC()

	raw, err := json.Marshal(toEventModel(evt))
	if err != nil {
		return fmt.Errorf("beacon/redis: marshal event: %w", err)
	}

	m := member(id)
	z := goredis.Z{Score: scoreFromTime(evt.CreatedAt), Member: m}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, entityKey(m), raw, 0)
		pipe.ZAdd(ctx, zEventAll, z)
		pipe.ZAdd(ctx, zEventType+evt.Type, z)
		return nil
	})
	if err != nil {
		return fmt.Errorf("beacon/redis: insert event: %w", err)
	}
	return nil
}

// CountByType returns per-type counts since the cutoff.
func (s *Store) CountByType(ctx context.Context, since time.Time) ([]event.TypeCount, error) {
	events, err := s.window(ctx, zEventAll, since, nil)
	if err != nil {
		return nil, err
	}
	return reduce.CountByType(events), nil
}

// TopValues returns the most frequent values of a payload field.
func (s *Store) TopValues(ctx context.Context, q event.ValueQuery) ([]event.ValueCount, error) {
	if !event.ValidField(q.Field) {
		return nil, beacon.ErrInvalidQuery
	}
	events, err := s.window(ctx, zEventType+q.Type, q.Since, nil)
	if err != nil {
		return nil, err
	}
	return reduce.TopValues(events, reduce.FieldKey(q.Field), q.Limit), nil
}

// TopReferrers returns the most frequent non-empty referrers.
func (s *Store) TopReferrers(ctx context.Context, since time.Time, limit int) ([]event.ValueCount, error) {
	events, err := s.window(ctx, zEventAll, since, nil)
	if err != nil {
		return nil, err
	}
	return reduce.TopValues(events, reduce.ReferrerKey, limit), nil
}

// Recent returns the newest events first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := s.rdb.ZRevRange(ctx, zEventAll, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("beacon/redis: recent events: %w", err)
	}
	events, err := s.load(ctx, members)
	if err != nil {
		return nil, err
	}
	reduce.SortByCreated(events, event.Desc)
	return events, nil
}

// Query returns events matching q.
func (s *Store) Query(ctx context.Context, q event.Query) ([]*event.Event, error) {
	key := zEventAll
	if len(q.Types) == 1 {
		key = zEventType + q.Types[0]
	}
	var since time.Time
	if q.From != nil {
		since = *q.From
	}
	events, err := s.window(ctx, key, since, q.To)
	if err != nil {
		return nil, err
	}
	return reduce.Query(events, q), nil
}

// TopPairs groups events of one type by two payload fields.
func (s *Store) TopPairs(ctx context.Context, q event.PairQuery) ([]event.PairCount, error) {
	if !event.ValidField(q.First) || !event.ValidField(q.Second) {
		return nil, beacon.ErrInvalidQuery
	}
	events, err := s.window(ctx, zEventType+q.Type, q.Since, nil)
	if err != nil {
		return nil, err
	}
	return reduce.TopPairs(events, q.First, q.Second, q.Limit), nil
}

// Series buckets one event type by period.
func (s *Store) Series(ctx context.Context, eventType string, since time.Time, g event.Granularity) ([]event.Bucket, error) {
	events, err := s.window(ctx, zEventType+eventType, since, nil)
	if err != nil {
		return nil, err
	}
	return reduce.Series(events, g), nil
}

// Count returns the number of events matching f.
func (s *Store) Count(ctx context.Context, f event.Filter) (int64, error) {
	if f.Field != "" && !event.ValidField(f.Field) {
		return 0, beacon.ErrInvalidQuery
	}
	key := zEventAll
	if f.Type != "" {
		key = zEventType + f.Type
	}
	events, err := s.window(ctx, key, f.Since, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(reduce.Match(events, f))), nil
}

// Sum adds up a numeric payload field across events matching f.
func (s *Store) Sum(ctx context.Context, f event.Filter, field string) (float64, error) {
	if !event.ValidField(field) || (f.Field != "" && !event.ValidField(f.Field)) {
		return 0, beacon.ErrInvalidQuery
	}
	key := zEventAll
	if f.Type != "" {
		key = zEventType + f.Type
	}
	events, err := s.window(ctx, key, f.Since, nil)
	if err != nil {
		return 0, err
	}
	return reduce.Sum(reduce.Match(events, f), field), nil
}

// window loads the events of an index created in [since, until].
func (s *Store) window(ctx context.Context, key string, since time.Time, until *time.Time) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	lo, hi := math.Inf(-1), math.Inf(1)
	if !since.IsZero() {
		lo = scoreFromTime(since) - boundSlack
	}
	if until != nil {
		hi = scoreFromTime(*until) + boundSlack
	}
	members, err := s.zRangeByScoreIDs(ctx, key, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("beacon/redis: range %s: %w", key, err)
	}
	events, err := s.load(ctx, members)
	if err != nil {
		return nil, err
	}

	events = reduce.Since(events, since)
	if until != nil {
		kept := events[:0]
		for _, e := range events {
			if !e.CreatedAt.After(*until) {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	return events, nil
}

// load fetches event documents in batches. Members whose document is
// missing are skipped.
func (s *Store) load(ctx context.Context, members []string) ([]*event.Event, error) {
	out := make([]*event.Event, 0, len(members))
	for start := 0; start < len(members); start += mgetBatch {
		end := min(start+mgetBatch, len(members))
		keys := make([]string, 0, end-start)
		for _, m := range members[start:end] {
			keys = append(keys, entityKey(m))
		}

		vals, err := s.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("beacon/redis: load events: %w", err)
		}
		for _, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var m eventModel
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return nil, fmt.Errorf("beacon/redis: decode event: %w", err)
			}
			out = append(out, fromEventModel(&m))
		}
	}
	return out, nil
}
