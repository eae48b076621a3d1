// Package metrics exposes Prometheus metrics for governance operations.
//
// Metrics (namespace "governor" by default):
//
//   - governor_operations_total{operation,result}: facade operations by outcome
//     ("ok", "not_found", "invalid", "blocked", "error")
//   - governor_operation_duration_seconds{operation}: facade operation latency
//   - governor_publish_blocked_total{reason}: publishes refused by a guard
//   - governor_preview_risk_total{level}: previews by risk level
//   - governor_profile_drift_total{profile}: live profiles changed outside the engine
//
// A nil *Collector is valid and records nothing, so components take one
// optionally.
//
// Each governor command is its own process, so every process records into a
// private registry and flushes it into a Spool under the control root when
// it exits. The run daemon serves the accumulated totals:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	spool := metrics.NewSpool(records, logger)
//	defer spool.Flush(collector.Registry())
//	http.Handle(cfg.Telemetry.Metrics.Path, spool.Handler(collector.Registry()))
package metrics
