package metrics

import "github.com/prometheus/client_golang/prometheus"

// PublishMetrics tracks publish previews and refusals.
type PublishMetrics struct {
	blockedTotal *prometheus.CounterVec
	previewTotal *prometheus.CounterVec
}

// NewPublishMetrics creates and registers publish metrics.
func NewPublishMetrics(namespace string, registry *prometheus.Registry) *PublishMetrics {
	pm := &PublishMetrics{
		blockedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_blocked_total",
				Help:      "Total number of publishes refused by a guard",
			},
			[]string{"reason"},
		),
		previewTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "preview_risk_total",
				Help:      "Total number of publish previews by risk level",
			},
			[]string{"level"},
		),
	}

	registry.MustRegister(pm.blockedTotal, pm.previewTotal)
	return pm
}

// RecordBlocked counts a refused publish.
func (pm *PublishMetrics) RecordBlocked(reason string) {
	pm.blockedTotal.WithLabelValues(reason).Inc()
}

// RecordPreview counts a preview.
func (pm *PublishMetrics) RecordPreview(level string) {
	pm.previewTotal.WithLabelValues(level).Inc()
}

// DriftMetrics tracks out-of-band profile changes.
type DriftMetrics struct {
	total *prometheus.CounterVec
}

// NewDriftMetrics creates and registers drift metrics.
func NewDriftMetrics(namespace string, registry *prometheus.Registry) *DriftMetrics {
	dm := &DriftMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "profile_drift_total",
				Help:      "Total number of live profile changes not made by the engine",
			},
			[]string{"profile"},
		),
	}

	registry.MustRegister(dm.total)
	return dm
}

// Record counts a drift event.
func (dm *DriftMetrics) Record(profile string) {
	dm.total.WithLabelValues(profile).Inc()
}
