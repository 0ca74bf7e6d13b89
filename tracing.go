package beacon

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/beacon/observability"
)

func (b *Beacon) startCollectSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	if b.tracer == nil {
		return ctx, nil
	}
	return b.tracer.StartCollectSpan(ctx, eventType)
}

func (b *Beacon) endSpan(span trace.Span, outcome string, err error) {
	if span == nil {
		return
	}
	observability.EndSpan(span, outcome, err)
}
