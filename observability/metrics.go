package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Rejection reasons recorded on EventsRejectedTotal.
const (
	ReasonInvalidType = "invalid_type"
	ReasonRateLimited = "rate_limited"
	ReasonDoNotTrack  = "do_not_track"
	ReasonStorage     = "storage"
)

// Metrics holds Prometheus instruments for Beacon.
type Metrics struct {
	EventsAcceptedTotal *prometheus.CounterVec
	EventsRejectedTotal *prometheus.CounterVec
	CollectLatency      prometheus.Histogram
	QueriesTotal        *prometheus.CounterVec
}

// NewMetrics creates Beacon metric instruments and registers them on reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsAcceptedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_events_accepted_total",
			Help: "Events persisted, by event type.",
		}, []string{"event_type"}),
		EventsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_events_rejected_total",
			Help: "Events not persisted, by reason.",
		}, []string{"reason"}),
		CollectLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beacon_collect_latency_seconds",
			Help:    "Time spent validating, admitting and persisting one event.",
			Buckets: prometheus.DefBuckets,
		}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beacon_queries_total",
			Help: "Aggregation queries served, by query name.",
		}, []string{"query"}),
	}
	reg.MustRegister(
		m.EventsAcceptedTotal,
		m.EventsRejectedTotal,
		m.CollectLatency,
		m.QueriesTotal,
	)
	return m
}

// RecordAccepted records a persisted event and its collection latency.
func (m *Metrics) RecordAccepted(eventType string, latencySeconds float64) {
	m.EventsAcceptedTotal.WithLabelValues(eventType).Inc()
	m.CollectLatency.Observe(latencySeconds)
}

// RecordRejected records an event that was not persisted.
func (m *Metrics) RecordRejected(reason string) {
	m.EventsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordQuery records an aggregation query.
func (m *Metrics) RecordQuery(name string) {
	m.QueriesTotal.WithLabelValues(name).Inc()
}
