package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LendingMetrics records engine activity: one counter per operation and
// outcome, plus a latency histogram per operation.
type LendingMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	accruals   prometheus.Counter
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

// Lending returns the lazily-initialised metrics registry for the lending
// engine.
func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "lendledger",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution of engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			accruals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendledger",
				Subsystem: "engine",
				Name:      "reserve_accruals_total",
				Help:      "Count of reserve interest accruals applied.",
			}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.accruals,
		)
	})
	return lendingRegistry
}

// ObserveOperation records one engine operation outcome and its duration.
func (m *LendingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(seconds)
}

// ObserveAccrual counts one applied reserve accrual.
func (m *LendingMetrics) ObserveAccrual() {
	if m == nil {
		return
	}
	m.accruals.Inc()
}
