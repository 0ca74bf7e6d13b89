package beacon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/beacon/aggregate"
	"github.com/xraph/beacon/catalog"
	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/metric"
	"github.com/xraph/beacon/observability"
	"github.com/xraph/beacon/ratelimit"
	"github.com/xraph/beacon/sanitize"
	"github.com/xraph/beacon/session"
	"github.com/xraph/beacon/store"
)

// Admitter decides whether a session may record another event.
// *ratelimit.Limiter and *ratelimit.Redis satisfy it.
type Admitter interface {
	Admit(ctx context.Context, key string) (bool, error)
}

// Hit is one untrusted event as received from a client.
type Hit struct {
	Type      string
	Data      any
	PageURL   string
	Referrer  string
	UserAgent string
}

// SessionFunc resolves the caller's session id. It runs only after the
// event type passes validation.
type SessionFunc func() string

// Origin attributes events recorded without a browser session.
type Origin struct {
	SessionID string
	UserAgent string
}

// Origins for programmatic events.
var (
	// OriginAPI attributes events recorded through Track.
	OriginAPI = Origin{SessionID: session.APICall, UserAgent: "beacon/api"}

	// OriginServer attributes events recorded by server-side integrations.
	OriginServer = Origin{SessionID: session.ServerSide, UserAgent: "beacon/server"}
)

// wireServices initializes the internal services after options have been applied.
func (b *Beacon) wireServices() error {
	if b.catalog == nil {
		b.catalog = catalog.NewDefault()
	}

	b.validator = sanitize.NewValidator(b.catalog, b.config.Limits)
	b.browser = sanitize.NewValidator(b.catalog.Group(catalog.GroupBrowser), b.config.Limits)
	b.sessions = session.NewIdentifier(b.config.CookieName)

	if b.admitter == nil {
		b.admitter = ratelimit.New(b.config.RateLimit, b.config.RateWindow)
	}

	sets, err := metric.NewRegistry(b.extraSets...)
	if err != nil {
		return fmt.Errorf("beacon: metric sets: %w", err)
	}
	b.sets = sets

	opts := []aggregate.Option{
		aggregate.WithDefaults(b.config.Defaults),
		aggregate.WithMetricSets(sets),
	}
	if b.metrics != nil {
		opts = append(opts, aggregate.WithMetrics(b.metrics))
	}
	if b.tracer != nil {
		opts = append(opts, aggregate.WithTracer(b.tracer))
	}
	b.engine = aggregate.New(b.store, opts...)
	return nil
}

// Collect validates, admits and persists one client event.
//
// The critical path:
//  1. Clean the event type and payload (reject types outside the browser group).
//  2. Resolve the session. This may set a cookie, so it runs only for valid types.
//  3. Admit the session through the rate limiter. Limiter errors fail open.
//  4. Persist the event with sanitized URLs and a bounded user agent.
func (b *Beacon) Collect(ctx context.Context, hit Hit, resolve SessionFunc) (err error) {
	start := time.Now()
	ctx, span := b.startCollectSpan(ctx, hit.Type)
	outcome := "persisted"
	defer func() { b.endSpan(span, outcome, err) }()

	// 1. Validate event type and clean payload.
	eventType, data, err := b.browser.Clean(hit.Type, hit.Data)
	if err != nil {
		outcome = observability.ReasonInvalidType
		b.recordRejected(observability.ReasonInvalidType)
		return fmt.Errorf("%w: %q", ErrInvalidEventType, sanitize.Truncate(hit.Type, sanitize.MaxTypeLen))
	}

	// 2. Resolve session.
	sessionID := session.ServerSide
	if resolve != nil {
		sessionID = resolve()
	}

	// 3. Rate check.
	ok, admitErr := b.admitter.Admit(ctx, sessionID)
	if admitErr != nil {
		b.logger.WarnContext(ctx, "rate limiter unavailable, admitting event",
			"event_type", eventType,
			"error", admitErr,
		)
		ok = true
	}
	if !ok {
		outcome = observability.ReasonRateLimited
		b.recordRejected(observability.ReasonRateLimited)
		return ErrRateLimited
	}

	// 4. Persist.
	evt := &event.Event{
		Entity:    NewEntity(),
		Type:      eventType,
		Data:      data,
		PageURL:   b.validator.URL(hit.PageURL),
		Referrer:  b.validator.URL(hit.Referrer),
		SessionID: sessionID,
		UserAgent: b.validator.Line(hit.UserAgent),
	}
	if insertErr := b.store.Insert(ctx, evt); insertErr != nil {
		outcome = observability.ReasonStorage
		b.recordRejected(observability.ReasonStorage)
		b.logger.ErrorContext(ctx, "persist event failed",
			"event_type", eventType,
			"error", insertErr,
		)
		return fmt.Errorf("beacon: persist event: %w", insertErr)
	}

	if b.metrics != nil {
		b.metrics.RecordAccepted(eventType, time.Since(start).Seconds())
	}

	b.logger.DebugContext(ctx, "event collected",
		"event_id", evt.ID,
		"type", eventType,
	)

	return nil
}

// Track records an event from application code. It returns false with a nil
// error when the type is not allow-listed in any group. Tracked events are attributed to
// OriginAPI and are not rate limited.
func (b *Beacon) Track(ctx context.Context, eventType string, data any, pageURL string) (bool, error) {
	return b.TrackFrom(ctx, OriginAPI, eventType, data, pageURL)
}

// TrackFrom records an event attributed to origin. See Track.
func (b *Beacon) TrackFrom(ctx context.Context, origin Origin, eventType string, data any, pageURL string) (bool, error) {
	cleanType, cleanData, err := b.validator.Clean(eventType, data)
	if errors.Is(err, sanitize.ErrRejected) {
		b.recordRejected(observability.ReasonInvalidType)
		b.logger.DebugContext(ctx, "tracked event type not allowed", "type", eventType)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	evt := &event.Event{
		Entity:    NewEntity(),
		Type:      cleanType,
		Data:      cleanData,
		PageURL:   b.validator.URL(pageURL),
		SessionID: origin.SessionID,
		UserAgent: origin.UserAgent,
	}
	if err := b.store.Insert(ctx, evt); err != nil {
		b.recordRejected(observability.ReasonStorage)
		return false, fmt.Errorf("beacon: persist event: %w", err)
	}

	if b.metrics != nil {
		b.metrics.EventsAcceptedTotal.WithLabelValues(cleanType).Inc()
	}
	return true, nil
}

// RecordDoNotTrack counts a request suppressed by a do-not-track signal.
func (b *Beacon) RecordDoNotTrack() {
	b.recordRejected(observability.ReasonDoNotTrack)
}

// Catalog returns the event type allow list.
func (b *Beacon) Catalog() *catalog.Catalog {
	return b.catalog
}

// Store returns the underlying store.
func (b *Beacon) Store() store.Store {
	return b.store
}

// Engine returns the aggregation engine.
func (b *Beacon) Engine() *aggregate.Engine {
	return b.engine
}

// Sessions returns the session identifier.
func (b *Beacon) Sessions() *session.Identifier {
	return b.sessions
}

// Validator returns the event validator.
func (b *Beacon) Validator() *sanitize.Validator {
	return b.validator
}

// MetricSets returns the metric set registry.
func (b *Beacon) MetricSets() *metric.Registry {
	return b.sets
}

// Config returns the effective configuration.
func (b *Beacon) Config() Config {
	return b.config
}

func (b *Beacon) recordRejected(reason string) {
	if b.metrics != nil {
		b.metrics.RecordRejected(reason)
	}
}
