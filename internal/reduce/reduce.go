// Package reduce computes the event.Store read shapes over an in-process
// slice of events. Backends without a query language (memory, Redis) load
// the candidate rows and delegate here so every backend orders and ties
// results the same way.
package reduce

import (
	"sort"
	"time"

	"github.com/xraph/beacon/event"
)

// Since returns the events created at or after t. A zero t keeps everything.
func Since(events []*event.Event, t time.Time) []*event.Event {
	if t.IsZero() {
		return events
	}
	out := make([]*event.Event, 0, len(events))
	for _, e := range events {
		if !e.CreatedAt.Before(t) {
			out = append(out, e)
		}
	}
	return out
}

// OfType returns the events whose type is eventType.
func OfType(events []*event.Event, eventType string) []*event.Event {
	out := make([]*event.Event, 0, len(events))
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// CountByType groups events by type.
func CountByType(events []*event.Event) []event.TypeCount {
	counts := make(map[string]int64)
	for _, e := range events {
		counts[e.Type]++
	}
	out := make([]event.TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, event.TypeCount{Type: t, Total: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// TopValues ranks the non-empty text values produced by key.
func TopValues(events []*event.Event, key func(*event.Event) (string, bool), limit int) []event.ValueCount {
	counts := make(map[string]int64)
	for _, e := range events {
		v, ok := key(e)
		if !ok || v == "" {
			continue
		}
		counts[v]++
	}
	out := make([]event.ValueCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, event.ValueCount{Value: v, Total: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Value < out[j].Value
	})
	return truncate(out, limit)
}

// FieldKey projects a payload field.
func FieldKey(field string) func(*event.Event) (string, bool) {
	return func(e *event.Event) (string, bool) { return e.Field(field) }
}

// ReferrerKey projects the referrer.
func ReferrerKey(e *event.Event) (string, bool) { return e.Referrer, e.Referrer != "" }

// TopPairs ranks (first, second) payload pairs. Missing fields group as "".
func TopPairs(events []*event.Event, first, second string, limit int) []event.PairCount {
	type pair struct{ a, b string }
	counts := make(map[pair]int64)
	for _, e := range events {
		a, _ := e.Field(first)
		b, _ := e.Field(second)
		counts[pair{a, b}]++
	}
	out := make([]event.PairCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, event.PairCount{First: p.a, Second: p.b, Total: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		if out[i].First != out[j].First {
			return out[i].First < out[j].First
		}
		return out[i].Second < out[j].Second
	})
	return truncate(out, limit)
}

// Series buckets events by period in ascending order.
func Series(events []*event.Event, g event.Granularity) []event.Bucket {
	counts := make(map[string]int64)
	for _, e := range events {
		counts[event.Period(e.CreatedAt, g)]++
	}
	out := make([]event.Bucket, 0, len(counts))
	for p, n := range counts {
		out = append(out, event.Bucket{Period: p, Count: n})
	}
	// Period layouts are fixed-width and zero-padded, so text order is time order.
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// Match returns the events satisfying f.
func Match(events []*event.Event, f event.Filter) []*event.Event {
	if f.Type != "" {
		events = OfType(events, f.Type)
	}
	out := make([]*event.Event, 0)
	for _, e := range Since(events, f.Since) {
		if f.Field != "" {
			v, ok := e.Field(f.Field)
			if !ok || v != f.Equals {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// Sum adds up a numeric payload field.
func Sum(events []*event.Event, field string) float64 {
	var total float64
	for _, e := range events {
		total += event.FieldNumber(e.Data, field)
	}
	return total
}

// Query applies the generic filter, ordering and pagination.
func Query(events []*event.Event, q event.Query) []*event.Event {
	types := make(map[string]bool, len(q.Types))
	for _, t := range q.Types {
		types[t] = true
	}
	out := make([]*event.Event, 0)
	for _, e := range events {
		if len(types) > 0 && !types[e.Type] {
			continue
		}
		if q.From != nil && e.CreatedAt.Before(*q.From) {
			continue
		}
		if q.To != nil && e.CreatedAt.After(*q.To) {
			continue
		}
		out = append(out, e)
	}
	SortByCreated(out, q.Order)
	return Paginate(out, q.Offset, q.Limit)
}

// SortByCreated orders events by created_at then ID in the given direction.
func SortByCreated(events []*event.Event, o event.Order) {
	asc := o == event.Asc
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if asc {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.CreatedAt.After(b.CreatedAt)
		}
		if asc {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
}

// Paginate applies offset and limit. A non-positive limit returns the rest.
func Paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	return truncate(items, limit)
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && limit < len(items) {
		return items[:limit]
	}
	return items
}
