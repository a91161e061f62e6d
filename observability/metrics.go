package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records RPC activity against the escrow module.
type EscrowMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	payouts  prometheus.Counter
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised metrics registry used to record
// escrow operation activity.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tradescrow",
				Subsystem: "escrow",
				Name:      "requests_total",
				Help:      "Total escrow operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tradescrow",
				Subsystem: "escrow",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for escrow operation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			payouts: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tradescrow",
				Subsystem: "escrow",
				Name:      "payouts_total",
				Help:      "Total successful payout transfers issued via the settlement channel.",
			}),
		}
		prometheus.MustRegister(escrowRegistry.requests, escrowRegistry.latency, escrowRegistry.payouts)
	})
	return escrowRegistry
}

// Observe records one handled operation with its outcome and duration.
func (m *EscrowMetrics) Observe(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// PayoutIssued counts one successful settlement transfer.
func (m *EscrowMetrics) PayoutIssued() {
	if m == nil {
		return
	}
	m.payouts.Inc()
}
