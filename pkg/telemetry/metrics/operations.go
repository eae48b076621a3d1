package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationMetrics tracks facade operations.
type OperationMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewOperationMetrics creates and registers operation metrics.
func NewOperationMetrics(namespace string, registry *prometheus.Registry) *OperationMetrics {
	om := &OperationMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of governance operations by outcome",
			},
			[]string{"operation", "result"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of governance operations in seconds",
				// File-backed operations: 1ms to ~4s
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(om.total, om.duration)
	return om
}

// Record records one operation.
func (om *OperationMetrics) Record(operation, result string, duration time.Duration) {
	om.total.WithLabelValues(operation, result).Inc()
	om.duration.WithLabelValues(operation).Observe(duration.Seconds())
}
