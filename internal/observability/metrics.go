// Package observability provides Prometheus metrics for the ingestion and
// dispatch pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors. Constructed once per
// process and passed by handle; a nil *Metrics disables recording, so
// library users who don't care about metrics can pass nil.
type Metrics struct {
	registry *prometheus.Registry

	eventsIngested   *prometheus.CounterVec
	eventsDuplicate  *prometheus.CounterVec
	eventsRejected   *prometheus.CounterVec
	dispatchMatched  *prometheus.CounterVec
	dispatchExecuted *prometheus.CounterVec
	dispatchFailed   *prometheus.CounterVec
	segmentsArchived *prometheus.CounterVec
}

// New creates and registers the pipeline metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookrelay_events_ingested_total",
			Help: "Events durably appended to a source log.",
		}, []string{"source"}),
		eventsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookrelay_events_duplicate_total",
			Help: "Events suppressed by idempotency-key deduplication.",
		}, []string{"source"}),
		eventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookrelay_events_rejected_total",
			Help: "Events whose append failed and was surfaced to the caller.",
		}, []string{"source"}),
		dispatchMatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookrelay_dispatch_matched_total",
			Help: "Trigger matches during dispatch fan-out.",
		}, []string{"agent"}),
		dispatchExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookrelay_dispatch_executed_total",
			Help: "Agent executions fired by matched triggers.",
		}, []string{"agent"}),
		dispatchFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookrelay_dispatch_failed_total",
			Help: "Agent executions that reported an asynchronous failure.",
		}, []string{"agent"}),
		segmentsArchived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hookrelay_archive_segments_total",
			Help: "Log segments rotated, compressed and uploaded.",
		}, []string{"source"}),
	}

	m.registry.MustRegister(
		m.eventsIngested,
		m.eventsDuplicate,
		m.eventsRejected,
		m.dispatchMatched,
		m.dispatchExecuted,
		m.dispatchFailed,
		m.segmentsArchived,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this registry, or nil when
// metrics are disabled.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return nil
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventIngested(source string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(source).Inc()
}

func (m *Metrics) EventDuplicate(source string) {
	if m == nil {
		return
	}
	m.eventsDuplicate.WithLabelValues(source).Inc()
}

func (m *Metrics) EventRejected(source string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(source).Inc()
}

func (m *Metrics) DispatchMatched(agent string) {
	if m == nil {
		return
	}
	m.dispatchMatched.WithLabelValues(agent).Inc()
}

func (m *Metrics) DispatchExecuted(agent string) {
	if m == nil {
		return
	}
	m.dispatchExecuted.WithLabelValues(agent).Inc()
}

func (m *Metrics) DispatchFailed(agent string) {
	if m == nil {
		return
	}
	m.dispatchFailed.WithLabelValues(agent).Inc()
}

func (m *Metrics) SegmentArchived(source string) {
	if m == nil {
		return
	}
	m.segmentsArchived.WithLabelValues(source).Inc()
}
