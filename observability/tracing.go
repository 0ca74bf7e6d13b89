// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the collector and the aggregation engine.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/beacon"

// Tracer provides OpenTelemetry tracing for Beacon.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// NewTracerFrom creates a tracer from an explicit provider.
func NewTracerFrom(tp trace.TracerProvider) *Tracer {
	return &Tracer{
		tracer: tp.Tracer(tracerName),
	}
}

// StartCollectSpan starts a span for one inbound event.
func (t *Tracer) StartCollectSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "beacon.collect",
		trace.WithAttributes(
			attribute.String("beacon.event_type", eventType),
		),
	)
}

// StartQuerySpan starts a span for an aggregation query.
func (t *Tracer) StartQuerySpan(ctx context.Context, query string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "beacon.query",
		trace.WithAttributes(
			attribute.String("beacon.query", query),
		),
	)
}

// EndSpan records the outcome on span and ends it.
func EndSpan(span trace.Span, outcome string, err error) {
	if outcome != "" {
		span.SetAttributes(attribute.String("beacon.outcome", outcome))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
