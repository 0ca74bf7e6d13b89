// Package aggregate answers operator questions over stored events: grouped
// counts, top-N rankings, time series, funnels and declarative metric sets.
//
// The engine is thin orchestration over event.Store. Its own logic is
// parameter defaulting and clamping plus shaping composite results. Every
// numeric input below 1 falls back to the documented default, so a caller
// can never issue a non-positive window.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/metric"
	"github.com/xraph/beacon/observability"
)

// ErrInvalidQuery is returned when an untrusted query parameter cannot be
// interpreted, such as an unparseable date or an unsafe field name.
var ErrInvalidQuery = errors.New("aggregate: invalid query")

// SearchCount is the frequency of one search query.
type SearchCount struct {
	Query string `json:"query"`
	Total int64  `json:"total"`
}

// ReferrerCount is the frequency of one referrer.
type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Total    int64  `json:"total"`
}

// NavClick is the click count of one navigation link.
type NavClick struct {
	Text   string `json:"text"`
	Href   string `json:"href"`
	Clicks int64  `json:"clicks"`
}

// Funnel names the start and completion event types of a two-stage funnel.
type Funnel struct {
	Start      string `json:"start" mapstructure:"start"`
	Completion string `json:"completion" mapstructure:"completion"`
}

// FunnelResult is the outcome of a funnel query. ConversionRate is
// completions/starts*100 rounded to two decimals, or 0 without starts.
type FunnelResult struct {
	Start          string  `json:"start"`
	Completion     string  `json:"completion"`
	Starts         int64   `json:"starts"`
	Completions    int64   `json:"completions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaults overrides the clamping defaults. Zero fields keep their
// documented value.
func WithDefaults(d Defaults) Option {
	return func(e *Engine) { e.defaults = d.withFallbacks() }
}

// WithMetricSets sets the registry consulted by Metrics.
func WithMetricSets(r *metric.Registry) Option {
	return func(e *Engine) { e.sets = r }
}

// WithMetrics records served queries on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer traces every query with t.
func WithTracer(t *observability.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock sets the time source used to compute trailing windows.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine runs aggregation queries against an event.Store.
type Engine struct {
	store    event.Store
	defaults Defaults
	sets     *metric.Registry
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	now      func() time.Time
}

// New creates an Engine over s.
func New(s event.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		defaults: DefaultDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sets == nil {
		// The built-in set always validates.
		e.sets, _ = metric.NewRegistry()
	}
	return e
}

// Defaults returns the effective defaults.
func (e *Engine) Defaults() Defaults { return e.defaults }

// MetricSets returns the registry consulted by Metrics.
func (e *Engine) MetricSets() *metric.Registry { return e.sets }

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// EventCounts returns per-type counts over the trailing window.
func (e *Engine) EventCounts(ctx context.Context, days int) (out []event.TypeCount, err error) {
	ctx, done := e.observe(ctx, "event_counts")
	defer func() { done(err) }()

	out, err = e.store.CountByType(ctx, e.cutoff(clamp(days, e.defaults.CountDays)))
	if err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// TopSearches returns the most frequent search queries of all time.
func (e *Engine) TopSearches(ctx context.Context, limit int) (out []SearchCount, err error) {
	ctx, done := e.observe(ctx, "top_searches")
	defer func() { done(err) }()

	values, err := e.store.TopValues(ctx, event.ValueQuery{
		Type:  "search",
		Field: "query",
		Limit: clamp(limit, e.defaults.SearchLimit),
	})
	if err != nil {
		return nil, err
	}
	out = make([]SearchCount, 0, len(values))
	for _, v := range values {
		out = append(out, SearchCount{Query: v.Value, Total: v.Total})
	}
	return out, nil
}

// TopValues returns the most frequent values of a payload field on one
// event type over the trailing window.
func (e *Engine) TopValues(ctx context.Context, eventType, field string, days, limit int) (out []event.ValueCount, err error) {
	ctx, done := e.observe(ctx, "top_values")
	defer func() { done(err) }()

	if eventType == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrInvalidQuery)
	}
	if !event.ValidField(field) {
		return nil, fmt.Errorf("%w: field %q", ErrInvalidQuery, field)
	}
	out, err = e.store.TopValues(ctx, event.ValueQuery{
		Type:  eventType,
		Field: field,
		Since: e.cutoff(clamp(days, e.defaults.ValueDays)),
		Limit: clamp(limit, e.defaults.ValueLimit),
	})
	if err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// TopReferrers returns the most frequent non-empty referrers over the
// trailing window.
func (e *Engine) TopReferrers(ctx context.Context, limit, days int) (out []ReferrerCount, err error) {
	ctx, done := e.observe(ctx, "top_referrers")
	defer func() { done(err) }()

	values, err := e.store.TopReferrers(ctx,
		e.cutoff(clamp(days, e.defaults.ReferrerDays)),
		clamp(limit, e.defaults.ReferrerLimit),
	)
	if err != nil {
		return nil, err
	}
	out = make([]ReferrerCount, 0, len(values))
	for _, v := range values {
		out = append(out, ReferrerCount{Referrer: v.Value, Total: v.Total})
	}
	return out, nil
}

// RecentEvents returns the newest events.
func (e *Engine) RecentEvents(ctx context.Context, limit int) (out []*event.Event, err error) {
	ctx, done := e.observe(ctx, "recent_events")
	defer func() { done(err) }()

	out, err = e.store.Recent(ctx, clamp(limit, e.defaults.RecentLimit))
	if err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// QueryEvents runs the generic filtered listing. Unparseable dates return
// ErrInvalidQuery.
func (e *Engine) QueryEvents(ctx context.Context, p QueryParams) (out []*event.Event, err error) {
	ctx, done := e.observe(ctx, "query_events")
	defer func() { done(err) }()

	q, err := p.toQuery(e.defaults)
	if err != nil {
		return nil, err
	}
	out, err = e.store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// NavClicks returns nav_click counts grouped by (href, text).
func (e *Engine) NavClicks(ctx context.Context, days, limit int) (out []NavClick, err error) {
	ctx, done := e.observe(ctx, "nav_clicks")
	defer func() { done(err) }()

	pairs, err := e.store.TopPairs(ctx, event.PairQuery{
		Type:   "nav_click",
		First:  "href",
		Second: "text",
		Since:  e.cutoff(clamp(days, e.defaults.NavDays)),
		Limit:  clamp(limit, e.defaults.NavLimit),
	})
	if err != nil {
		return nil, err
	}
	out = make([]NavClick, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, NavClick{Href: p.First, Text: p.Second, Clicks: p.Total})
	}
	return out, nil
}

// TimeSeries returns per-period counts of one event type in chronological
// order. An empty type means the default series type.
func (e *Engine) TimeSeries(ctx context.Context, eventType string, days int, g event.Granularity) (out []event.Bucket, err error) {
	ctx, done := e.observe(ctx, "time_series")
	defer func() { done(err) }()

	if eventType == "" {
		eventType = e.defaults.SeriesType
	}
	if g != event.Hour {
		g = event.Day
	}
	out, err = e.store.Series(ctx, eventType, e.cutoff(clamp(days, e.defaults.SeriesDays)), g)
	if err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

// Funnel runs the default funnel over the trailing window.
func (e *Engine) Funnel(ctx context.Context, days int) (FunnelResult, error) {
	return e.FunnelFor(ctx, e.defaults.Funnel, days)
}

// FunnelFor counts f.Start and f.Completion events over the trailing window
// and derives the conversion rate. Empty stages fall back to the default funnel.
func (e *Engine) FunnelFor(ctx context.Context, f Funnel, days int) (res FunnelResult, err error) {
	ctx, done := e.observe(ctx, "funnel")
	defer func() { done(err) }()

	if f.Start == "" || f.Completion == "" {
		f = e.defaults.Funnel
	}
	since := e.cutoff(clamp(days, e.defaults.FunnelDays))

	starts, err := e.store.Count(ctx, event.Filter{Type: f.Start, Since: since})
	if err != nil {
		return FunnelResult{}, err
	}
	completions, err := e.store.Count(ctx, event.Filter{Type: f.Completion, Since: since})
	if err != nil {
		return FunnelResult{}, err
	}
	return FunnelResult{
		Start:          f.Start,
		Completion:     f.Completion,
		Starts:         starts,
		Completions:    completions,
		ConversionRate: metric.Percent(float64(completions), float64(starts)),
	}, nil
}

// Metrics evaluates a registered metric set over the trailing window.
func (e *Engine) Metrics(ctx context.Context, set string, days int) (res metric.Result, err error) {
	ctx, done := e.observe(ctx, "metrics")
	defer func() { done(err) }()

	s, err := e.sets.Get(set)
	if err != nil {
		return nil, err
	}
	return s.Evaluate(ctx, e.store, e.cutoff(clamp(days, e.defaults.MetricDays)))
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// MaxDays bounds every lookback window. Larger values mean "all time".
const MaxDays = 100 * 366

func (e *Engine) cutoff(days int) time.Time {
	days = min(days, MaxDays)
	return e.now().UTC().AddDate(0, 0, -days)
}

// observe records and traces one query. The returned func ends the span.
func (e *Engine) observe(ctx context.Context, name string) (context.Context, func(error)) {
	if e.metrics != nil {
		e.metrics.RecordQuery(name)
	}
	if e.tracer == nil {
		return ctx, func(error) {}
	}
	var span trace.Span
	ctx, span = e.tracer.StartQuerySpan(ctx, name)
	return ctx, func(err error) { observability.EndSpan(span, "", err) }
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
