// Package telemetry groups the governor's observability packages.
//
//   - logging: slog logger construction and context fields
//   - metrics: Prometheus collector for governance operations
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness and readiness endpoints for the daemon
//
// Each subpackage is configured from the telemetry section of the
// configuration and tolerates being disabled.
package telemetry
