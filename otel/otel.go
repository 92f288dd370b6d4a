package otel

import (
	"github.com/tidemark/eventsource"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/tidemark/eventsource"
)

// Semantic attribute keys following OpenTelemetry conventions
const (
	AttrAggregateID = attribute.Key("eventsource.aggregate.id")
	AttrVersion     = attribute.Key("eventsource.aggregate.version")

	AttrEventType  = attribute.Key("eventsource.event.type")
	AttrEventID    = attribute.Key("eventsource.event.id")
	AttrEventCount = attribute.Key("eventsource.events.count")

	AttrOperation    = attribute.Key("eventsource.operation")
	AttrErrorType    = attribute.Key("eventsource.error.type")
	AttrHandlerName  = attribute.Key("eventsource.handler.name")
	AttrSnapshotSize = attribute.Key("eventsource.snapshot.size")
)

var (
	meter  = otel.Meter(instrumentationName, metric.WithInstrumentationVersion(eventsource.InstrumentationVersion))
	tracer = otel.Tracer(instrumentationName, trace.WithInstrumentationVersion(eventsource.InstrumentationVersion))

	// Event dispatch metrics
	EventsHandled, _ = meter.Int64Counter(
		"eventsource.events.handled",
		metric.WithDescription("Number of events dispatched to handlers"),
		metric.WithUnit("{event}"),
	)

	EventsFailed, _ = meter.Int64Counter(
		"eventsource.events.failed",
		metric.WithDescription("Number of event handler failures"),
		metric.WithUnit("{event}"),
	)

	EventsDuration, _ = meter.Float64Histogram(
		"eventsource.events.duration",
		metric.WithDescription("Event handling duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	// Event store metrics
	EventStoreAppends, _ = meter.Int64Counter(
		"eventsource.eventstore.appends",
		metric.WithDescription("Number of append operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreLoads, _ = meter.Int64Counter(
		"eventsource.eventstore.loads",
		metric.WithDescription("Number of load operations"),
		metric.WithUnit("{operation}"),
	)

	EventStoreDuration, _ = meter.Float64Histogram(
		"eventsource.eventstore.duration",
		metric.WithDescription("Event store operation duration"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000),
	)

	EventStoreErrors, _ = meter.Int64Counter(
		"eventsource.eventstore.errors",
		metric.WithDescription("Number of event store errors"),
		metric.WithUnit("{error}"),
	)

	EventsAppended, _ = meter.Int64Counter(
		"eventsource.events.appended",
		metric.WithDescription("Number of events appended to streams"),
		metric.WithUnit("{event}"),
	)

	EventsLoaded, _ = meter.Int64Counter(
		"eventsource.events.loaded",
		metric.WithDescription("Number of events loaded from streams"),
		metric.WithUnit("{event}"),
	)

	// System metrics
	ConcurrencyConflicts, _ = meter.Int64Counter(
		"eventsource.concurrency.conflicts",
		metric.WithDescription("Number of optimistic concurrency conflicts"),
		metric.WithUnit("{conflict}"),
	)

	AggregateVersionGauge, _ = meter.Int64Gauge(
		"eventsource.aggregate.version",
		metric.WithDescription("Current version of aggregates after append"),
		metric.WithUnit("{version}"),
	)
)
