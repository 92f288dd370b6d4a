package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark/eventsource"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Middleware instruments event dispatch with OpenTelemetry tracing and
// metrics. Each handled event produces a span named after the event type,
// a handled counter increment and a duration histogram sample; failures
// additionally increment the failure counter and mark the span as errored.
type Middleware struct{}

// NewMiddleware creates the telemetry middleware.
func NewMiddleware() *Middleware {
	return &Middleware{}
}

func (m *Middleware) Process(ctx context.Context, hctx *eventsource.EventHandlerContext, next eventsource.Next) (any, error) {
	eventType := hctx.EventType()

	attr := []attribute.KeyValue{
		AttrEventType.String(eventType),
		AttrEventID.String(eventsource.EventIDFromContext(ctx).String()),
		AttrAggregateID.String(eventsource.AggregateIDFromContext(ctx)),
		AttrVersion.Int64(int64(eventsource.VersionFromContext(ctx))),
	}

	ctx, span := tracer.Start(ctx, fmt.Sprintf("events.handle %s", eventType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attr...),
	)
	defer span.End()

	EventsHandled.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))

	startTime := time.Now()
	out, err := next(ctx, hctx)
	EventsDuration.Record(ctx,
		float64(time.Since(startTime).Milliseconds()),
		metric.WithAttributes(AttrEventType.String(eventType)),
	)

	if err != nil {
		EventsFailed.Add(ctx, 1, metric.WithAttributes(AttrEventType.String(eventType)))
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return out, err
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

var _ eventsource.Middleware = (*Middleware)(nil)
