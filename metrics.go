package eventsource

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventMetrics accumulates handling statistics for one event type. Counters
// are cumulative for the lifetime of the middleware; there is no reset.
type EventMetrics struct {
	EventType     string
	Count         uint64
	SuccessCount  uint64
	FailureCount  uint64
	TotalDuration time.Duration
	MinDuration   time.Duration
	MaxDuration   time.Duration
}

// AverageDuration returns the mean handling duration, or 0 before the first
// observation.
func (m EventMetrics) AverageDuration() time.Duration {
	if m.Count == 0 {
		return 0
	}
	return m.TotalDuration / time.Duration(m.Count)
}

// SuccessRate returns the success percentage in [0, 100], or 0 before the
// first observation.
func (m EventMetrics) SuccessRate() float64 {
	if m.Count == 0 {
		return 0
	}
	return float64(m.SuccessCount) / float64(m.Count) * 100
}

// Recorder receives every observation the metrics middleware makes, for
// export to an external metrics system.
type Recorder interface {
	RecordHandled(eventType string, duration time.Duration, success bool)
}

// MetricsMiddleware measures handler invocations per event type: counts,
// success/failure split and duration aggregates. A short-circuit by an inner
// middleware still counts as an invocation of that event type.
type MetricsMiddleware struct {
	mu       sync.RWMutex
	metrics  map[string]*EventMetrics
	log      *slog.Logger
	recorder Recorder

	reportEvery time.Duration
	done        chan struct{}
	closeOnce   sync.Once
}

// MetricsOption configures a MetricsMiddleware.
type MetricsOption func(*MetricsMiddleware)

// WithRecorder forwards every observation to an external recorder, such as a
// prometheus exporter.
func WithRecorder(rec Recorder) MetricsOption {
	return func(m *MetricsMiddleware) {
		m.recorder = rec
	}
}

// WithReportInterval starts a background goroutine that logs a summary of
// all tracked event types every interval. Close stops it.
func WithReportInterval(interval time.Duration) MetricsOption {
	return func(m *MetricsMiddleware) {
		m.reportEvery = interval
	}
}

// NewMetricsMiddleware creates the middleware. A nil logger falls back to
// slog.Default().
func NewMetricsMiddleware(log *slog.Logger, opts ...MetricsOption) *MetricsMiddleware {
	if log == nil {
		log = slog.Default()
	}
	m := &MetricsMiddleware{
		metrics: make(map[string]*EventMetrics),
		log:     log,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.reportEvery > 0 {
		go m.reportLoop()
	}
	return m
}

func (m *MetricsMiddleware) Process(ctx context.Context, hctx *EventHandlerContext, next Next) (any, error) {
	start := now()
	out, err := next(ctx, hctx)
	m.Observe(hctx.EventType(), now().Sub(start), err == nil)
	return out, err
}

// Observe records one handled event. Exposed so store decorators and tests
// can feed observations directly.
func (m *MetricsMiddleware) Observe(eventType string, duration time.Duration, success bool) {
	m.mu.Lock()
	em, ok := m.metrics[eventType]
	if !ok {
		em = &EventMetrics{EventType: eventType}
		m.metrics[eventType] = em
	}

	em.Count++
	if success {
		em.SuccessCount++
	} else {
		em.FailureCount++
	}
	em.TotalDuration += duration
	if em.Count == 1 || duration < em.MinDuration {
		em.MinDuration = duration
	}
	if duration > em.MaxDuration {
		em.MaxDuration = duration
	}
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.RecordHandled(eventType, duration, success)
	}
}

// Metrics returns a copy of the metrics for one event type. The second
// return is false when the event type has never been observed.
func (m *MetricsMiddleware) Metrics(eventType string) (EventMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	em, ok := m.metrics[eventType]
	if !ok {
		return EventMetrics{}, false
	}
	return *em, true
}

// Snapshot returns a copy of all tracked metrics keyed by event type.
func (m *MetricsMiddleware) Snapshot() map[string]EventMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]EventMetrics, len(m.metrics))
	for k, v := range m.metrics {
		out[k] = *v
	}
	return out
}

// Close stops the periodic reporter, if any. Safe to call multiple times.
func (m *MetricsMiddleware) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

func (m *MetricsMiddleware) reportLoop() {
	ticker := time.NewTicker(m.reportEvery)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *MetricsMiddleware) report() {
	for eventType, em := range m.Snapshot() {
		m.log.Info("event handling metrics",
			slog.String("event_type", eventType),
			slog.Uint64("count", em.Count),
			slog.Uint64("success_count", em.SuccessCount),
			slog.Uint64("failure_count", em.FailureCount),
			slog.Duration("avg_duration", em.AverageDuration()),
			slog.Duration("min_duration", em.MinDuration),
			slog.Duration("max_duration", em.MaxDuration),
			slog.Float64("success_rate", em.SuccessRate()),
		)
	}
}

var _ Middleware = (*MetricsMiddleware)(nil)
