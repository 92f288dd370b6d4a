// Package prometheus exports event handling metrics to a Prometheus
// registry. Plug the Recorder into the metrics middleware with
// eventsource.WithRecorder.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tidemark/eventsource"
)

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// Recorder implements eventsource.Recorder on top of Prometheus collectors.
type Recorder struct {
	handledDuration *prometheus.HistogramVec
	handledTotal    *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		handledDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventsource_events_handled_duration_seconds",
			Help:    "Event handling latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"event_type"}),

		handledTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventsource_events_handled_total",
			Help: "Total number of events handled",
		}, []string{"event_type", "success"}),
	}

	reg.MustRegister(
		r.handledDuration,
		r.handledTotal,
	)

	return r
}

func (r *Recorder) RecordHandled(eventType string, duration time.Duration, success bool) {
	r.handledDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	r.handledTotal.WithLabelValues(eventType, boolToStr(success)).Inc()
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ eventsource.Recorder = (*Recorder)(nil)
