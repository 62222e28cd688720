package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors exposed at /metrics. Route
// labels are the handler's logical route pattern (e.g. "/memories/{hash}"),
// not the raw request path, so cardinality stays bounded.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SyncQueueDepth *prometheus.GaugeVec

	ConsolidationRunsTotal    *prometheus.CounterVec
	ConsolidationRunDuration  *prometheus.HistogramVec
}

// NewMetrics registers the API's collectors with reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortex_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"route", "method"},
		),
		SyncQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cortex_sync_queue_depth",
				Help: "Current depth of the hybrid backend's sync queue",
			},
			[]string{"op"},
		),
		ConsolidationRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cortex_consolidation_runs_total",
				Help: "Total number of consolidation runs by horizon and outcome",
			},
			[]string{"horizon", "outcome"},
		),
		ConsolidationRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cortex_consolidation_run_duration_seconds",
				Help:    "Duration of consolidation runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"horizon"},
		),
	}
}

func (m *Metrics) recordHTTP(route, method, status string, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(seconds)
}

func (m *Metrics) recordConsolidation(horizon, outcome string, seconds float64) {
	m.ConsolidationRunsTotal.WithLabelValues(horizon, outcome).Inc()
	m.ConsolidationRunDuration.WithLabelValues(horizon).Observe(seconds)
}

// SetSyncQueueDepth publishes the hybrid backend's current queue depth for
// a given operation kind ("upsert" or "delete").
func (m *Metrics) SetSyncQueueDepth(op string, depth int) {
	m.SyncQueueDepth.WithLabelValues(op).Set(float64(depth))
}
