package otel

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/tidemark/eventsource"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var _ eventsource.EventStore = (*TelemetryStore)(nil)

// TelemetryStore wraps an EventStore with OpenTelemetry tracing and metrics.
// Append produces a client span plus counters; the Load methods instrument
// the returned iterator so the span covers the whole replay, ending only
// when iteration finishes.
type TelemetryStore struct {
	next eventsource.EventStore
}

// WithEventStoreTelemetry decorates the store with telemetry.
func WithEventStoreTelemetry(next eventsource.EventStore) eventsource.EventStore {
	return TelemetryStore{next: next}
}

func (t TelemetryStore) Append(ctx context.Context, events []eventsource.Envelope, expectedVersion uint64) error {
	var aggregateID string
	if len(events) > 0 {
		aggregateID = events[0].AggregateID
	}

	ctx, span := tracer.Start(ctx, "EventStore.Append",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String("append"),
			AttrAggregateID.String(aggregateID),
			AttrVersion.Int64(int64(expectedVersion)),
			AttrEventCount.Int64(int64(len(events))),
		),
	)
	defer span.End()

	start := time.Now()
	err := t.next.Append(ctx, events, expectedVersion)

	EventStoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(AttrOperation.String("append")),
	)
	EventStoreAppends.Add(ctx, 1)
	EventsAppended.Add(ctx, int64(len(events)))

	if err != nil {
		var conflict *eventsource.ConcurrencyError
		if errors.As(err, &conflict) {
			ConcurrencyConflicts.Add(ctx, 1)
			span.AddEvent("concurrency_conflict", trace.WithAttributes(
				AttrAggregateID.String(aggregateID),
			))
		}
		EventStoreErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	AggregateVersionGauge.Record(ctx, int64(expectedVersion)+int64(len(events)),
		metric.WithAttributes(AttrAggregateID.String(aggregateID)),
	)
	return nil
}

func (t TelemetryStore) LoadStream(ctx context.Context, aggregateID string) (*eventsource.Iterator[*eventsource.Envelope], error) {
	iter, err := t.next.LoadStream(ctx, aggregateID)
	if err != nil {
		EventStoreErrors.Add(ctx, 1)
		return iter, err
	}
	return t.instrument(iter, "EventStore.LoadStream", aggregateID), nil
}

func (t TelemetryStore) LoadStreamFrom(ctx context.Context, aggregateID string, version uint64) (*eventsource.Iterator[*eventsource.Envelope], error) {
	iter, err := t.next.LoadStreamFrom(ctx, aggregateID, version)
	if err != nil {
		EventStoreErrors.Add(ctx, 1)
		return iter, err
	}
	return t.instrument(iter, "EventStore.LoadStreamFrom", aggregateID), nil
}

func (t TelemetryStore) Close() error {
	return t.next.Close()
}

// instrument wraps the iterator so the replay span opens on the first Next
// and closes when the iterator is exhausted or fails.
func (t TelemetryStore) instrument(iter *eventsource.Iterator[*eventsource.Envelope], operation, aggregateID string) *eventsource.Iterator[*eventsource.Envelope] {
	started := false
	var startedAt time.Time
	var span trace.Span
	var eventCount int64

	return eventsource.NewIteratorFunc(func(ctx context.Context) (*eventsource.Envelope, error) {
		if !started {
			started = true
			startedAt = time.Now()
			ctx, span = tracer.Start(ctx, operation,
				trace.WithSpanKind(trace.SpanKindClient),
				trace.WithAttributes(AttrAggregateID.String(aggregateID)),
			)
		}

		if !iter.Next(ctx) {
			span.SetAttributes(AttrEventCount.Int64(eventCount))

			err := iter.Err()
			if err == nil {
				EventStoreDuration.Record(ctx, float64(time.Since(startedAt).Milliseconds()),
					metric.WithAttributes(AttrOperation.String("load")),
				)
				EventStoreLoads.Add(ctx, 1)
				span.End()
				return nil, io.EOF
			}

			EventStoreErrors.Add(ctx, 1)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return nil, err
		}

		eventCount++
		EventsLoaded.Add(ctx, 1)
		return iter.Value(), nil
	})
}
