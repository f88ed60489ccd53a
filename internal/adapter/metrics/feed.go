package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FeedMetrics holds Prometheus metrics for dataset fetches and the record cache.
// A nil *FeedMetrics is valid and records nothing.
type FeedMetrics struct {
	CacheLookups        *prometheus.CounterVec
	DatasetRequests     *prometheus.CounterVec
	DatasetDuration     *prometheus.HistogramVec
	RecordsFetched      prometheus.Histogram
	Discoveries         *prometheus.CounterVec
	CircuitBreakerState prometheus.Gauge
	CircuitStateChanges *prometheus.CounterVec
}

// NewFeedMetrics creates and registers feed metrics on the given registry.
func NewFeedMetrics(reg prometheus.Registerer) *FeedMetrics {
	m := &FeedMetrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "record_cache",
			Name:      "lookups_total",
			Help:      "Total number of record cache lookups, by cache and result.",
		}, []string{"cache", "result"}),
		DatasetRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "requests_total",
			Help:      "Total number of dataset queries, by attempt and result.",
		}, []string{"attempt", "result"}),
		DatasetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "request_duration_seconds",
			Help:      "Duration of dataset queries in seconds, by attempt.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"attempt"}),
		RecordsFetched: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "records_fetched",
			Help:      "Number of records returned per successful dataset query.",
			Buckets:   []float64{10, 100, 500, 1000, 5000, 10000, 20000},
		}),
		Discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "discoveries_total",
			Help:      "Total number of fallback dataset discoveries, by result.",
		}, []string{"result"}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "circuit_breaker_state",
			Help:      "Primary dataset circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		CircuitStateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dataset",
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of primary dataset circuit breaker transitions, by new state.",
		}, []string{"to"}),
	}

	reg.MustRegister(m.CacheLookups, m.DatasetRequests, m.DatasetDuration, m.RecordsFetched,
		m.Discoveries, m.CircuitBreakerState, m.CircuitStateChanges)
	return m
}

// CacheHit records a cache hit for the named cache.
func (m *FeedMetrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, "hit").Inc()
}

// CacheMiss records a cache miss for the named cache.
func (m *FeedMetrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(cache, "miss").Inc()
}

// ObserveRequest records one dataset query attempt ("primary" or "fallback").
func (m *FeedMetrics) ObserveRequest(attempt string, elapsed time.Duration, records int, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.DatasetRequests.WithLabelValues(attempt, result).Inc()
	m.DatasetDuration.WithLabelValues(attempt).Observe(elapsed.Seconds())
	if err == nil {
		m.RecordsFetched.Observe(float64(records))
	}
}

// ObserveDiscovery records a discovery outcome ("found" or "default").
func (m *FeedMetrics) ObserveDiscovery(result string) {
	if m == nil {
		return
	}
	m.Discoveries.WithLabelValues(result).Inc()
}

// SetCircuitState records a breaker transition.
func (m *FeedMetrics) SetCircuitState(state string, value float64) {
	if m == nil {
		return
	}
	m.CircuitStateChanges.WithLabelValues(state).Inc()
	m.CircuitBreakerState.Set(value)
}
