package beacon

import (
	"log/slog"
	"time"

	"github.com/xraph/beacon/aggregate"
	"github.com/xraph/beacon/catalog"
	"github.com/xraph/beacon/metric"
	"github.com/xraph/beacon/observability"
	"github.com/xraph/beacon/sanitize"
	"github.com/xraph/beacon/session"
	"github.com/xraph/beacon/store"
)

// Beacon is the root event collector.
type Beacon struct {
	config    Config
	store     store.Store
	catalog   *catalog.Catalog
	validator *sanitize.Validator
	browser   *sanitize.Validator
	sessions  *session.Identifier
	admitter  Admitter
	engine    *aggregate.Engine
	sets      *metric.Registry
	extraSets []metric.Set
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
}

// Option configures a Beacon instance.
type Option func(*Beacon) error

// New creates a new Beacon with the given options.
func New(opts ...Option) (*Beacon, error) {
	b := &Beacon{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.store == nil {
		return nil, ErrNoStore
	}
	if err := b.wireServices(); err != nil {
		return nil, err
	}
	return b, nil
}

// WithStore sets the persistence backend for the Beacon instance.
func WithStore(s store.Store) Option {
	return func(b *Beacon) error {
		b.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Beacon instance.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Beacon) error {
		b.logger = logger
		return nil
	}
}

// WithCatalog sets the event type allow list. The default catalog holds the
// built-in browser and integration types.
func WithCatalog(c *catalog.Catalog) Option {
	return func(b *Beacon) error {
		b.catalog = c
		return nil
	}
}

// WithAllowedTypes replaces the allow list with the given browser event
// types. Names may be patterns such as "spawn_*".
func WithAllowedTypes(names ...string) Option {
	return func(b *Beacon) error {
		defs := make([]catalog.Definition, 0, len(names))
		for _, n := range names {
			defs = append(defs, catalog.Definition{Name: n, Group: catalog.GroupBrowser})
		}
		b.catalog = catalog.New(defs...)
		return nil
	}
}

// WithRateLimit sets the number of events one session may record per window.
func WithRateLimit(n int) Option {
	return func(b *Beacon) error {
		b.config.RateLimit = n
		return nil
	}
}

// WithRateWindow sets the rate-limit window.
func WithRateWindow(d time.Duration) Option {
	return func(b *Beacon) error {
		b.config.RateWindow = d
		return nil
	}
}

// WithAdmitter replaces the in-process rate limiter, for example with a
// Redis-backed limiter shared by several collectors.
func WithAdmitter(a Admitter) Option {
	return func(b *Beacon) error {
		b.admitter = a
		return nil
	}
}

// WithCookieName sets the session cookie name.
func WithCookieName(name string) Option {
	return func(b *Beacon) error {
		b.config.CookieName = name
		return nil
	}
}

// WithSanitizerLimits sets the payload and URL size limits.
func WithSanitizerLimits(l sanitize.Limits) Option {
	return func(b *Beacon) error {
		b.config.Limits = l
		return nil
	}
}

// WithDefaults sets the aggregation parameter defaults.
func WithDefaults(d aggregate.Defaults) Option {
	return func(b *Beacon) error {
		b.config.Defaults = d
		return nil
	}
}

// WithMetricSets registers additional metric sets alongside the built-in one.
func WithMetricSets(sets ...metric.Set) Option {
	return func(b *Beacon) error {
		b.extraSets = append(b.extraSets, sets...)
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Beacon) error {
		b.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry tracing.
func WithTracer(t *observability.Tracer) Option {
	return func(b *Beacon) error {
		b.tracer = t
		return nil
	}
}
