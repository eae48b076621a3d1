// Package health serves liveness, readiness and version endpoints for the
// governor daemon.
//
// Readiness runs every registered check concurrently, each under its own
// timeout. The daemon registers checks for the control root, the live
// profile root and the audit journal:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("control_root", health.DirCheck(cfg.Paths.ControlRoot))
//	health.Register(mux, checker, version)
//
// Endpoints:
//
//   - /health: 200 while the process runs
//   - /ready: 200 when every check passes, 503 otherwise
//   - /version: build information
package health
