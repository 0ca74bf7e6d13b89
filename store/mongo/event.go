package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/event"
)

// Insert persists an event under the next counter ID.
func (s *Store) Insert(ctx context.Context, evt *event.Event) error {
	if s.closed.Load() {
		return beacon.ErrStoreClosed
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = now()
	}
	// BSON dates keep milliseconds.
	evt.CreatedAt = evt.CreatedAt.UTC().Truncate(time.Millisecond)

	id, err := s.nextID(ctx, colEvents)
	if err != nil {
		return fmt.Errorf("beacon/mongo: next event id: %w", err)
	}
	evt.ID = id

	if _, err := s.mdb.NewInsert(toEventModel(evt)).Exec(ctx); err != nil {
		return fmt.Errorf("beacon/mongo: insert event: %w", err)
	}
	return nil
}

// CountByType returns per-type counts since the cutoff.
func (s *Store) CountByType(ctx context.Context, since time.Time) ([]event.TypeCount, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	var rows []valueCountRow
	err := s.aggregate(ctx, bson.A{
		bson.M{"$match": bson.M{"created_at": bson.M{"$gte": since}}},
		bson.M{"$group": bson.M{"_id": "$event_type", "total": bson.M{"$sum": 1}}},
		bson.M{"$sort": bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("beacon/mongo: count by type: %w", err)
	}

	out := make([]event.TypeCount, len(rows))
	for i, r := range rows {
		out[i] = event.TypeCount{Type: r.Value, Total: r.Total}
	}
	return out, nil
}

// TopValues returns the most frequent non-empty values of a payload field.
func (s *Store) TopValues(ctx context.Context, q event.ValueQuery) ([]event.ValueCount, error) {
	if !event.ValidField(q.Field) {
		return nil, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	pipeline := bson.A{
		bson.M{"$match": bson.M{"event_type": q.Type, "created_at": bson.M{"$gte": q.Since}}},
		bson.M{"$project": bson.M{"v": fieldText(q.Field)}},
		bson.M{"$match": bson.M{"v": bson.M{"$nin": bson.A{nil, ""}}}},
		bson.M{"$group": bson.M{"_id": "$v", "total": bson.M{"$sum": 1}}},
		bson.M{"$sort": bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}},
	}
	pipeline = withLimit(pipeline, q.Limit)

	var rows []valueCountRow
	if err := s.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("beacon/mongo: top values: %w", err)
	}
	return toValueCounts(rows), nil
}

// TopReferrers returns the most frequent non-empty referrers.
func (s *Store) TopReferrers(ctx context.Context, since time.Time, limit int) ([]event.ValueCount, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	pipeline := bson.A{
		bson.M{"$match": bson.M{"created_at": bson.M{"$gte": since}, "referrer": bson.M{"$ne": ""}}},
		bson.M{"$group": bson.M{"_id": "$referrer", "total": bson.M{"$sum": 1}}},
		bson.M{"$sort": bson.D{{Key: "total", Value: -1}, {Key: "_id", Value: 1}}},
	}
	pipeline = withLimit(pipeline, limit)

	var rows []valueCountRow
	if err := s.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("beacon/mongo: top referrers: %w", err)
	}
	return toValueCounts(rows), nil
}

// Recent returns the newest events first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	var models []eventModel
	q := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("beacon/mongo: recent events: %w", err)
	}
	return fromEventModels(models), nil
}

// Query returns events matching the optional filters in q.
func (s *Store) Query(ctx context.Context, q event.Query) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	filter := bson.M{}
	if len(q.Types) > 0 {
		filter["event_type"] = bson.M{"$in": q.Types}
	}
	if q.From != nil || q.To != nil {
		dateFilter := bson.M{}
		if q.From != nil {
			dateFilter["$gte"] = *q.From
		}
		if q.To != nil {
			dateFilter["$lte"] = *q.To
		}
		filter["created_at"] = dateFilter
	}

	dir := -1
	if q.Order == event.Asc {
		dir = 1
	}

	var models []eventModel
	find := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}})
	if q.Limit > 0 {
		find = find.Limit(int64(q.Limit))
	}
	if q.Offset > 0 {
		find = find.Skip(int64(q.Offset))
	}
	if err := find.Scan(ctx); err != nil {
		return nil, fmt.Errorf("beacon/mongo: query events: %w", err)
	}
	return fromEventModels(models), nil
}

// TopPairs groups events of one type by two payload fields.
func (s *Store) TopPairs(ctx context.Context, q event.PairQuery) ([]event.PairCount, error) {
	if !event.ValidField(q.First) || !event.ValidField(q.Second) {
		return nil, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	pipeline := bson.A{
		bson.M{"$match": bson.M{"event_type": q.Type, "created_at": bson.M{"$gte": q.Since}}},
		bson.M{"$group": bson.M{
			"_id": bson.M{
				"first":  bson.M{"$ifNull": bson.A{fieldText(q.First), ""}},
				"second": bson.M{"$ifNull": bson.A{fieldText(q.Second), ""}},
			},
			"total": bson.M{"$sum": 1},
		}},
		bson.M{"$sort": bson.D{{Key: "total", Value: -1}, {Key: "_id.first", Value: 1}, {Key: "_id.second", Value: 1}}},
	}
	pipeline = withLimit(pipeline, q.Limit)

	var rows []pairCountRow
	if err := s.aggregate(ctx, pipeline, &rows); err != nil {
		return nil, fmt.Errorf("beacon/mongo: top pairs: %w", err)
	}
	out := make([]event.PairCount, len(rows))
	for i, r := range rows {
		out[i] = event.PairCount{First: r.Key.First, Second: r.Key.Second, Total: r.Total}
	}
	return out, nil
}

// Series returns per-period counts of one event type in chronological order.
func (s *Store) Series(ctx context.Context, eventType string, since time.Time, g event.Granularity) ([]event.Bucket, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	format := "%Y-%m-%d"
	if g == event.Hour {
		format = "%Y-%m-%d %H:00"
	}

	var rows []valueCountRow
	err := s.aggregate(ctx, bson.A{
		bson.M{"$match": bson.M{"event_type": eventType, "created_at": bson.M{"$gte": since}}},
		bson.M{"$group": bson.M{
			"_id": bson.M{"$dateToString": bson.M{
				"format": format, "date": "$created_at", "timezone": "UTC",
			}},
			"total": bson.M{"$sum": 1},
		}},
		bson.M{"$sort": bson.D{{Key: "_id", Value: 1}}},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("beacon/mongo: series: %w", err)
	}

	out := make([]event.Bucket, len(rows))
	for i, r := range rows {
		out[i] = event.Bucket{Period: r.Value, Count: r.Total}
	}
	return out, nil
}

// Count returns the number of events matching f.
func (s *Store) Count(ctx context.Context, f event.Filter) (int64, error) {
	if f.Field != "" && !event.ValidField(f.Field) {
		return 0, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return 0, beacon.ErrStoreClosed
	}

	n, err := s.mdb.Collection(colEvents).CountDocuments(ctx, matchFilter(f))
	if err != nil {
		return 0, fmt.Errorf("beacon/mongo: count events: %w", err)
	}
	return n, nil
}

// Sum adds up the numeric form of a payload field across events matching f.
func (s *Store) Sum(ctx context.Context, f event.Filter, field string) (float64, error) {
	if !event.ValidField(field) || (f.Field != "" && !event.ValidField(f.Field)) {
		return 0, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return 0, beacon.ErrStoreClosed
	}

	numeric := bson.M{"$convert": bson.M{
		"input":   bson.M{"$trim": bson.M{"input": fieldText(field)}},
		"to":      "double",
		"onError": 0.0,
		"onNull":  0.0,
	}}

	var rows []sumRow
	err := s.aggregate(ctx, bson.A{
		bson.M{"$match": matchFilter(f)},
		bson.M{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": numeric}}},
	}, &rows)
	if err != nil {
		return 0, fmt.Errorf("beacon/mongo: sum %s: %w", field, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// scalarTypes are the BSON types a payload field may hold to be projected.
var scalarTypes = bson.A{"string", "bool", "int", "long", "double", "decimal"}

// fieldText is an aggregation expression for the text form of a payload
// field: scalars via $toString, anything else null.
// The field must already have passed event.ValidField.
func fieldText(field string) bson.M {
	path := "$event_data." + field
	return bson.M{"$cond": bson.A{
		bson.M{"$in": bson.A{bson.M{"$type": path}, scalarTypes}},
		bson.M{"$toString": path},
		nil,
	}}
}

// matchFilter renders f as a $match document.
func matchFilter(f event.Filter) bson.M {
	m := bson.M{"created_at": bson.M{"$gte": f.Since}}
	if f.Type != "" {
		m["event_type"] = f.Type
	}
	if f.Field != "" {
		m["$expr"] = bson.M{"$eq": bson.A{fieldText(f.Field), f.Equals}}
	}
	return m
}

func withLimit(pipeline bson.A, limit int) bson.A {
	if limit > 0 {
		pipeline = append(pipeline, bson.M{"$limit": int64(limit)})
	}
	return pipeline
}

func toValueCounts(rows []valueCountRow) []event.ValueCount {
	out := make([]event.ValueCount, len(rows))
	for i, r := range rows {
		out[i] = event.ValueCount{Value: r.Value, Total: r.Total}
	}
	return out
}
