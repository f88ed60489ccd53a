package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RefreshMetrics holds Prometheus metrics for refresh cycles.
// A nil *RefreshMetrics is valid and records nothing.
type RefreshMetrics struct {
	Refreshes     *prometheus.CounterVec
	Duration      prometheus.Histogram
	Degraded      prometheus.Gauge
	Neighborhoods prometheus.Gauge
	Records       prometheus.Gauge
}

// NewRefreshMetrics creates and registers refresh metrics on the given registry.
func NewRefreshMetrics(reg prometheus.Registerer) *RefreshMetrics {
	m := &RefreshMetrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "cycles_total",
			Help:      "Total number of refresh cycles, by result.",
		}, []string{"result"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "duration_seconds",
			Help:      "Duration of completed refresh cycles in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refresh",
			Name:      "degraded",
			Help:      "1 when the last refresh failed and stale data is being served.",
		}),
		Neighborhoods: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "neighborhoods",
			Help:      "Number of neighborhoods in the current snapshot.",
		}),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "records",
			Help:      "Number of records aggregated into the current snapshot.",
		}),
	}

	reg.MustRegister(m.Refreshes, m.Duration, m.Degraded, m.Neighborhoods, m.Records)
	return m
}

// Succeeded records a published snapshot.
func (m *RefreshMetrics) Succeeded(elapsed time.Duration, neighborhoods, records int) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues("success").Inc()
	m.Duration.Observe(elapsed.Seconds())
	m.Degraded.Set(0)
	m.Neighborhoods.Set(float64(neighborhoods))
	m.Records.Set(float64(records))
}

// Failed records a refresh that left the previous snapshot in place.
func (m *RefreshMetrics) Failed(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues("failure").Inc()
	m.Duration.Observe(elapsed.Seconds())
	m.Degraded.Set(1)
}

// Dropped records a refresh request rejected because another was in flight.
func (m *RefreshMetrics) Dropped() {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues("dropped").Inc()
}
