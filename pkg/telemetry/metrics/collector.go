package metrics

import (
	"sync"
	"time"

	"aitrade-hq/governor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// otherLabel replaces label values beyond the cardinality limit.
const otherLabel = "other"

// DefaultMaxProfiles bounds the distinct profile label values.
const DefaultMaxProfiles = 1000

// Collector owns the governance metrics and their registry.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	operations *OperationMetrics
	publish    *PublishMetrics
	drift      *DriftMetrics

	profiles *CardinalityLimiter
}

// NewCollector creates and registers the metrics. A nil registry gets a
// fresh one.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		enabled:    config.BoolValue(cfg.Enabled, config.DefaultMetricsEnabled),
		registry:   registry,
		operations: NewOperationMetrics(cfg.Namespace, registry),
		publish:    NewPublishMetrics(cfg.Namespace, registry),
		drift:      NewDriftMetrics(cfg.Namespace, registry),
		profiles:   NewCardinalityLimiter(DefaultMaxProfiles),
	}
}

func (c *Collector) active() bool {
	return c != nil && c.enabled
}

// RecordOperation records one facade operation and its outcome.
func (c *Collector) RecordOperation(operation, result string, duration time.Duration) {
	if !c.active() {
		return
	}
	c.operations.Record(operation, result, duration)
}

// RecordPublishBlocked counts a publish refused for reason.
func (c *Collector) RecordPublishBlocked(reason string) {
	if !c.active() {
		return
	}
	c.publish.RecordBlocked(reason)
}

// RecordPreviewRisk counts a preview at the given risk level.
func (c *Collector) RecordPreviewRisk(level string) {
	if !c.active() {
		return
	}
	c.publish.RecordPreview(level)
}

// RecordDrift counts an out-of-band change to profile.
func (c *Collector) RecordDrift(profile string) {
	if !c.active() {
		return
	}
	if !c.profiles.Allow(profile) {
		profile = otherLabel
	}
	c.drift.Record(profile)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct values admitted for a label.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting up to maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value is already admitted or fits under the limit.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of admitted values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
