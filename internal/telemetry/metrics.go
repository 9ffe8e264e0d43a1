package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	ComputationsTotal   *prometheus.CounterVec
	ComputationDuration *prometheus.HistogramVec
	RegionFallbacks     *prometheus.CounterVec
	QuotesReturned      *prometheus.CounterVec
}

// NewMetrics creates and registers Prometheus metrics. A nil registerer
// targets the default registry; tests pass their own to stay isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ComputationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nominated_computations_total",
				Help: "Total window and rate computations by operation and status",
			},
			[]string{"operation", "status"},
		),
		ComputationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nominated_computation_duration_seconds",
				Help:    "Computation duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		RegionFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nominated_region_fallbacks_total",
				Help: "Region resolutions that fell through to the store default without a filter match",
			},
			[]string{"store"},
		),
		QuotesReturned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nominated_rate_quotes_total",
				Help: "Rate quotes returned to checkout callbacks by store",
			},
			[]string{"store"},
		),
	}
}

// RecordComputation records one window or rate computation.
func (m *Metrics) RecordComputation(operation, status string, seconds float64) {
	m.ComputationsTotal.WithLabelValues(operation, status).Inc()
	m.ComputationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordRegionFallback records a default-region fallback diagnostic.
func (m *Metrics) RecordRegionFallback(storeID string) {
	m.RegionFallbacks.WithLabelValues(storeID).Inc()
}

// RecordQuotes records the number of rate quotes returned for a store.
func (m *Metrics) RecordQuotes(storeID string, n int) {
	m.QuotesReturned.WithLabelValues(storeID).Add(float64(n))
}
