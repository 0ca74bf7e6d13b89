package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/internal/entity"
	"github.com/xraph/beacon/internal/sqlq"
	beaconstore "github.com/xraph/beacon/store"
)

// compile-time interface check
var _ beaconstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
//
// Payload fields are read with the JSON1 functions; created_at is kept as
// fixed-width UTC text so range filters and strftime buckets agree.
type Store struct {
	db     *grove.DB
	sdb    *sqlitedriver.SqliteDB
	closed atomic.Bool
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("beacon/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("beacon/sqlite: %w: %w", beacon.ErrMigrationFailed, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return beacon.ErrStoreClosed
	}
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.closed.Store(true)
	return s.db.Close()
}

// ==================== Event Store ====================

// Insert writes the row and reads back the assigned ID.
func (s *Store) Insert(ctx context.Context, evt *event.Event) error {
	if s.closed.Load() {
		return beacon.ErrStoreClosed
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = entity.Now()
	}
	evt.CreatedAt = evt.CreatedAt.UTC().Truncate(time.Microsecond)

	m, err := toEventModel(evt)
	if err != nil {
		return fmt.Errorf("beacon/sqlite: %w", err)
	}

	var rows []eventModel
	err = s.sdb.NewRaw(`
		INSERT INTO beacon_events (event_type, event_data, page_url, referrer, session_id, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING *
	`, m.Type, m.Data, m.PageURL, m.Referrer, m.SessionID, m.UserAgent, m.CreatedAt).Scan(ctx, &rows)
	if err != nil {
		return fmt.Errorf("beacon/sqlite: insert event: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("beacon/sqlite: insert event: %w", sql.ErrNoRows)
	}
	evt.ID = rows[0].ID
	return nil
}

func (s *Store) CountByType(ctx context.Context, since time.Time) ([]event.TypeCount, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	var rows []typeCountRow
	err := s.sdb.NewRaw(`
		SELECT event_type, COUNT(*) AS total
		FROM beacon_events
		WHERE created_at >= ?
		GROUP BY event_type
		ORDER BY total DESC, event_type ASC
	`, stamp(since)).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("beacon/sqlite: count by type: %w", err)
	}
	out := make([]event.TypeCount, len(rows))
	for i, r := range rows {
		out[i] = event.TypeCount{Type: r.Type, Total: r.Total}
	}
	return out, nil
}

func (s *Store) TopValues(ctx context.Context, q event.ValueQuery) ([]event.ValueCount, error) {
	if !event.ValidField(q.Field) {
		return nil, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	args := sqlq.New(sqlq.Question)
	expr := fieldText(args, q.Field)
	query := fmt.Sprintf(`
		SELECT v AS value, COUNT(*) AS total
		FROM (SELECT %s AS v FROM beacon_events WHERE event_type = %s AND created_at >= %s)
		WHERE v IS NOT NULL AND v <> ''
		GROUP BY v
		ORDER BY total DESC, v ASC
		LIMIT %s
	`, expr, args.Add(q.Type), args.Add(stamp(q.Since)), args.Add(limitOrAll(q.Limit)))

	var rows []valueCountRow
	if err := s.sdb.NewRaw(query, args.Values()...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("beacon/sqlite: top values: %w", err)
	}
	return toValueCounts(rows), nil
}

func (s *Store) TopReferrers(ctx context.Context, since time.Time, limit int) ([]event.ValueCount, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	var rows []valueCountRow
	err := s.sdb.NewRaw(`
		SELECT referrer AS value, COUNT(*) AS total
		FROM beacon_events
		WHERE referrer <> '' AND created_at >= ?
		GROUP BY referrer
		ORDER BY total DESC, referrer ASC
		LIMIT ?
	`, stamp(since), limitOrAll(limit)).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("beacon/sqlite: top referrers: %w", err)
	}
	return toValueCounts(rows), nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	var models []eventModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("beacon/sqlite: recent events: %w", err)
	}
	return fromEventModels(models)
}

func (s *Store) Query(ctx context.Context, q event.Query) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	args := sqlq.New(sqlq.Question)
	var conds []string
	if len(q.Types) > 0 {
		conds = append(conds, "event_type IN ("+args.List(q.Types)+")")
	}
	if q.From != nil {
		conds = append(conds, "created_at >= "+args.Add(stamp(*q.From)))
	}
	if q.To != nil {
		conds = append(conds, "created_at <= "+args.Add(stamp(*q.To)))
	}

	dir := "DESC"
	if q.Order == event.Asc {
		dir = "ASC"
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	query := "SELECT * FROM beacon_events" + sqlq.Where(conds) +
		fmt.Sprintf(" ORDER BY created_at %s, id %s", dir, dir) +
		" LIMIT " + args.Add(limitOrAll(q.Limit)) +
		" OFFSET " + args.Add(offset)

	var models []eventModel
	if err := s.sdb.NewRaw(query, args.Values()...).Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("beacon/sqlite: query events: %w", err)
	}
	return fromEventModels(models)
}

func (s *Store) TopPairs(ctx context.Context, q event.PairQuery) ([]event.PairCount, error) {
	if !event.ValidField(q.First) || !event.ValidField(q.Second) {
		return nil, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	args := sqlq.New(sqlq.Question)
	first := fieldText(args, q.First)
	second := fieldText(args, q.Second)
	query := fmt.Sprintf(`
		SELECT a AS first, b AS second, COUNT(*) AS total
		FROM (
			SELECT COALESCE(%s, '') AS a, COALESCE(%s, '') AS b
			FROM beacon_events
			WHERE event_type = %s AND created_at >= %s
		)
		GROUP BY a, b
		ORDER BY total DESC, a ASC, b ASC
		LIMIT %s
	`, first, second, args.Add(q.Type), args.Add(stamp(q.Since)), args.Add(limitOrAll(q.Limit)))

	var rows []pairCountRow
	if err := s.sdb.NewRaw(query, args.Values()...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("beacon/sqlite: top pairs: %w", err)
	}
	out := make([]event.PairCount, len(rows))
	for i, r := range rows {
		out[i] = event.PairCount{First: r.First, Second: r.Second, Total: r.Total}
	}
	return out, nil
}

func (s *Store) Series(ctx context.Context, eventType string, since time.Time, g event.Granularity) ([]event.Bucket, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	format := "%Y-%m-%d"
	if g == event.Hour {
		format = "%Y-%m-%d %H:00"
	}

	var rows []bucketRow
	err := s.sdb.NewRaw(`
		SELECT strftime(?, created_at) AS period, COUNT(*) AS total
		FROM beacon_events
		WHERE event_type = ? AND created_at >= ?
		GROUP BY period
		ORDER BY period ASC
	`, format, eventType, stamp(since)).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("beacon/sqlite: series: %w", err)
	}
	out := make([]event.Bucket, len(rows))
	for i, r := range rows {
		out[i] = event.Bucket{Period: r.Period, Count: r.Total}
	}
	return out, nil
}

func (s *Store) Count(ctx context.Context, f event.Filter) (int64, error) {
	if f.Field != "" && !event.ValidField(f.Field) {
		return 0, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return 0, beacon.ErrStoreClosed
	}

	q := s.sdb.NewSelect((*eventModel)(nil)).Where("created_at >= ?", stamp(f.Since))
	if f.Type != "" {
		q = q.Where("event_type = ?", f.Type)
	}
	if f.Field != "" {
		args := sqlq.New(sqlq.Question)
		expr := fieldText(args, f.Field)
		q = q.Where(expr+" = ?", append(args.Values(), f.Equals)...)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("beacon/sqlite: count events: %w", err)
	}
	return count, nil
}

func (s *Store) Sum(ctx context.Context, f event.Filter, field string) (float64, error) {
	if !event.ValidField(field) || (f.Field != "" && !event.ValidField(f.Field)) {
		return 0, beacon.ErrInvalidQuery
	}
	if s.closed.Load() {
		return 0, beacon.ErrStoreClosed
	}

	args := sqlq.New(sqlq.Question)
	value := fieldText(args, field)
	conds := []string{"created_at >= " + args.Add(stamp(f.Since))}
	if f.Type != "" {
		conds = append(conds, "event_type = "+args.Add(f.Type))
	}
	if f.Field != "" {
		expr := fieldText(args, f.Field)
		conds = append(conds, expr+" = "+args.Add(f.Equals))
	}

	// Anything that is not plain numeric text counts as zero.
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(
			CASE WHEN v IS NULL OR v = '' OR v GLOB '*[^0-9.eE+-]*' THEN 0.0
			ELSE CAST(v AS REAL) END
		), 0.0) AS total
		FROM (SELECT trim(%s) AS v FROM beacon_events%s)
	`, value, sqlq.Where(conds))

	var rows []sumRow
	if err := s.sdb.NewRaw(query, args.Values()...).Scan(ctx, &rows); err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("beacon/sqlite: sum %s: %w", field, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// ==================== Helpers ====================

// fieldText renders the text form of a payload field: booleans as
// "true"/"false", numbers and strings as text, containers and nulls as NULL.
// The field must already have passed event.ValidField.
func fieldText(args *sqlq.Args, field string) string {
	path := `$."` + field + `"`
	return fmt.Sprintf(`(CASE json_type(event_data, %s)
		WHEN 'true' THEN 'true'
		WHEN 'false' THEN 'false'
		WHEN 'object' THEN NULL
		WHEN 'array' THEN NULL
		WHEN 'null' THEN NULL
		ELSE CAST(json_extract(event_data, %s) AS TEXT) END)`, args.Add(path), args.Add(path))
}

// limitOrAll maps a non-positive limit to SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit < 1 {
		return -1
	}
	return limit
}

func toValueCounts(rows []valueCountRow) []event.ValueCount {
	out := make([]event.ValueCount, len(rows))
	for i, r := range rows {
		out[i] = event.ValueCount{Value: r.Value, Total: r.Total}
	}
	return out
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
