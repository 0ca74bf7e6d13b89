package event

import (
	"context"
	"time"
)

// Store defines the persistence contract for analytics events.
//
// Implementations bind every filter value as a query parameter. Payload
// field names are checked with ValidField before they reach a backend.
type Store interface {
	// Insert appends an event, assigning ID and, when zero, CreatedAt.
	// Must be durable before returning.
	Insert(ctx context.Context, evt *Event) error

	// CountByType returns event counts per type created at or after since,
	// ordered by total descending then type ascending.
	CountByType(ctx context.Context, since time.Time) ([]TypeCount, error)

	// TopValues returns the most frequent non-empty values of a payload
	// field, ordered by total descending then value ascending.
	TopValues(ctx context.Context, q ValueQuery) ([]ValueCount, error)

	// TopReferrers returns the most frequent non-empty referrers created at
	// or after since, ordered by total descending then referrer ascending.
	TopReferrers(ctx context.Context, since time.Time, limit int) ([]ValueCount, error)

	// Recent returns the newest events first.
	Recent(ctx context.Context, limit int) ([]*Event, error)

	// Query returns events matching the optional filters in q.
	Query(ctx context.Context, q Query) ([]*Event, error)

	// TopPairs groups events of one type by two payload fields, ordered by
	// total descending then First and Second ascending.
	TopPairs(ctx context.Context, q PairQuery) ([]PairCount, error)

	// Series returns per-period counts of one event type created at or
	// after since, in chronological order.
	Series(ctx context.Context, eventType string, since time.Time, g Granularity) ([]Bucket, error)

	// Count returns the number of events matching f.
	Count(ctx context.Context, f Filter) (int64, error)

	// Sum adds up the numeric form of a payload field across events
	// matching f. Non-numeric values contribute zero.
	Sum(ctx context.Context, f Filter, field string) (float64, error)
}

// ValidField reports whether name is a payload key a store may project.
// Keys are limited to the charset the sanitizer produces.
func ValidField(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return false
		}
	}
	return true
}
