// Package tracing wires OpenTelemetry spans around governance operations.
//
// When tracing is enabled spans are batched to an OTLP gRPC collector; when
// disabled (or for a nil *Tracer) every call is a no-op:
//
//	tracer, err := tracing.New(cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "governance.Publish")
//	defer func() { tracing.End(span, err) }()
//
// Attribute keys live under the "governor." namespace (see attributes.go).
package tracing
