package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/beacon"
	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/internal/entity"
	"github.com/xraph/beacon/internal/sqlq"
	beaconstore "github.com/xraph/beacon/store"
)

// compile-time interface check
var _ beaconstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db     *grove.DB
	pg     *pgdriver.PgDB
	closed atomic.Bool
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("beacon/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("beacon/postgres: %w: %w", beacon.ErrMigrationFailed, err)
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
	// TIMESTAMPTZ keeps microseconds.
	evt.CreatedAt = evt.CreatedAt.UTC().Truncate(time.Microsecond)

	m, err := toEventModel(evt)
	if err != nil {
		return fmt.Errorf("beacon/postgres: %w", err)
	}

	var rows []eventModel
	err = s.pg.NewRaw(`
		INSERT INTO beacon_events (event_type, event_data, page_url, referrer, session_id, user_agent, created_at)
		VALUES ($1, $2::jsonb, $3, $4, $5, $6, $7)
		RETURNING *
	`, m.Type, string(m.Data), m.PageURL, m.Referrer, m.SessionID, m.UserAgent, m.CreatedAt).Scan(ctx, &rows)
	if err != nil {
		return fmt.Errorf("beacon/postgres: insert event: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("beacon/postgres: insert event: %w", sql.ErrNoRows)
	}
	evt.ID = rows[0].ID
	return nil
}

func (s *Store) CountByType(ctx context.Context, since time.Time) ([]event.TypeCount, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	var rows []typeCountRow
	err := s.pg.NewRaw(`
		SELECT event_type, COUNT(*) AS total
		FROM beacon_events
		WHERE created_at >= $1
		GROUP BY event_type
		ORDER BY total DESC, event_type ASC
	`, since.UTC()).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("beacon/postgres: count by type: %w", err)
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

	args := sqlq.New(sqlq.Dollar)
	expr := fieldText(args, q.Field)
	query := fmt.Sprintf(`
		SELECT v AS value, COUNT(*) AS total
		FROM (SELECT %s AS v FROM beacon_events WHERE event_type = %s AND created_at >= %s) t
		WHERE v IS NOT NULL AND v <> ''
		GROUP BY v
		ORDER BY total DESC, v ASC
	`, expr, args.Add(q.Type), args.Add(q.Since.UTC())) + limit(args, q.Limit)

	var rows []valueCountRow
	if err := s.pg.NewRaw(query, args.Values()...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("beacon/postgres: top values: %w", err)
	}
	return toValueCounts(rows), nil
}

func (s *Store) TopReferrers(ctx context.Context, since time.Time, n int) ([]event.ValueCount, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	args := sqlq.New(sqlq.Dollar)
	query := `
		SELECT referrer AS value, COUNT(*) AS total
		FROM beacon_events
		WHERE referrer <> '' AND created_at >= ` + args.Add(since.UTC()) + `
		GROUP BY referrer
		ORDER BY total DESC, referrer ASC
	` + limit(args, n)

	var rows []valueCountRow
	if err := s.pg.NewRaw(query, args.Values()...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("beacon/postgres: top referrers: %w", err)
	}
	return toValueCounts(rows), nil
}

func (s *Store) Recent(ctx context.Context, n int) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}
	var models []eventModel
	q := s.pg.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("beacon/postgres: recent events: %w", err)
	}
	return fromEventModels(models)
}

func (s *Store) Query(ctx context.Context, q event.Query) ([]*event.Event, error) {
	if s.closed.Load() {
		return nil, beacon.ErrStoreClosed
	}

	var models []eventModel
	sel := s.pg.NewSelect(&models)

	args := sqlq.New(sqlq.Dollar)
	var conds []string
	if len(q.Types) > 0 {
		conds = append(conds, "event_type IN ("+args.List(q.Types)+")")
	}
	if q.From != nil {
		conds = append(conds, "created_at >= "+args.Add(q.From.UTC()))
	}
	if q.To != nil {
		conds = append(conds, "created_at <= "+args.Add(q.To.UTC()))
	}
	if len(conds) > 0 {
		sel = sel.Where(strings.Join(conds, " AND "), args.Values()...)
	}

	if q.Order == event.Asc {
		sel = sel.OrderExpr("created_at ASC, id ASC")
	} else {
		sel = sel.OrderExpr("created_at DESC, id DESC")
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sel = sel.Offset(q.Offset)
	}

	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("beacon/postgres: query events: %w", err)
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

	args := sqlq.New(sqlq.Dollar)
	first := fieldText(args, q.First)
	second := fieldText(args, q.Second)
	query := fmt.Sprintf(`
		SELECT a AS first, b AS second, COUNT(*) AS total
		FROM (
			SELECT COALESCE(%s, '') AS a, COALESCE(%s, '') AS b
			FROM beacon_events
			WHERE event_type = %s AND created_at >= %s
		) t
		GROUP BY a, b
		ORDER BY total DESC, a ASC, b ASC
	`, first, second, args.Add(q.Type), args.Add(q.Since.UTC())) + limit(args, q.Limit)

	var rows []pairCountRow
	if err := s.pg.NewRaw(query, args.Values()...).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("beacon/postgres: top pairs: %w", err)
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
	unit, format := "day", "YYYY-MM-DD"
	if g == event.Hour {
		unit, format = "hour", "YYYY-MM-DD HH24:00"
	}

	var rows []bucketRow
	err := s.pg.NewRaw(fmt.Sprintf(`
		SELECT to_char(date_trunc('%s', created_at AT TIME ZONE 'UTC'), '%s') AS period, COUNT(*) AS total
		FROM beacon_events
		WHERE event_type = $1 AND created_at >= $2
		GROUP BY period
		ORDER BY period ASC
	`, unit, format), eventType, since.UTC()).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("beacon/postgres: series: %w", err)
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

	args := sqlq.New(sqlq.Dollar)
	conds := filterConds(args, f)
	count, err := s.pg.NewSelect((*eventModel)(nil)).
		Where(strings.Join(conds, " AND "), args.Values()...).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("beacon/postgres: count events: %w", err)
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

	args := sqlq.New(sqlq.Dollar)
	value := fieldText(args, field)
	conds := filterConds(args, f)

	// Anything that is not plain numeric text counts as zero.
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(
			CASE WHEN v ~ '^[-+]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][-+]?[0-9]+)?$' THEN v::double precision
			ELSE 0 END
		), 0) AS total
		FROM (SELECT btrim(%s) AS v FROM beacon_events%s) t
	`, value, sqlq.Where(conds))

	var rows []sumRow
	if err := s.pg.NewRaw(query, args.Values()...).Scan(ctx, &rows); err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("beacon/postgres: sum %s: %w", field, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// ==================== Helpers ====================

// fieldText renders the text form of a payload field. ->> already yields
// "true"/"false" for booleans; containers and nulls become NULL.
// The field must already have passed event.ValidField.
func fieldText(args *sqlq.Args, field string) string {
	typ := args.Add(field)
	val := args.Add(field)
	return fmt.Sprintf(`(CASE jsonb_typeof(event_data -> %s::text)
		WHEN 'object' THEN NULL
		WHEN 'array' THEN NULL
		WHEN 'null' THEN NULL
		ELSE event_data ->> %s::text END)`, typ, val)
}

// filterConds renders the type, time and field-equality conditions of f.
func filterConds(args *sqlq.Args, f event.Filter) []string {
	conds := []string{"created_at >= " + args.Add(f.Since.UTC())}
	if f.Type != "" {
		conds = append(conds, "event_type = "+args.Add(f.Type))
	}
	if f.Field != "" {
		expr := fieldText(args, f.Field)
		conds = append(conds, expr+" = "+args.Add(f.Equals))
	}
	return conds
}

// limit renders a LIMIT clause, or nothing for a non-positive n.
func limit(args *sqlq.Args, n int) string {
	if n < 1 {
		return ""
	}
	return " LIMIT " + args.Add(n)
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
