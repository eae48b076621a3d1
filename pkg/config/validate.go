package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "audit.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All errors are collected and
// returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validatePaths(&cfg.Paths)...)
	errs = append(errs, validateGovernance(&cfg.Governance)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateWatch(&cfg.Watch)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validatePaths(p *PathsConfig) []FieldError {
	var errs []FieldError
	if p.ControlRoot == "" {
		errs = append(errs, FieldError{Field: "paths.control_root", Message: "must not be empty"})
	}
	if p.ConfigRoot == "" {
		errs = append(errs, FieldError{Field: "paths.config_root", Message: "must not be empty"})
	}
	if p.ReportsRoot == "" {
		errs = append(errs, FieldError{Field: "paths.reports_root", Message: "must not be empty"})
	}
	if p.ControlRoot != "" && p.ConfigRoot != "" &&
		filepath.Clean(p.ControlRoot) == filepath.Clean(p.ConfigRoot) {
		errs = append(errs, FieldError{
			Field:   "paths.config_root",
			Message: "must differ from paths.control_root",
		})
	}
	return errs
}

func validateGovernance(g *GovernanceConfig) []FieldError {
	var errs []FieldError

	if g.HighRiskRequiredApprovals < 2 || g.HighRiskRequiredApprovals > 5 {
		errs = append(errs, FieldError{
			Field:   "governance.high_risk_required_approvals",
			Message: fmt.Sprintf("must be in [2, 5], got %d", g.HighRiskRequiredApprovals),
		})
	}
	if cd := IntValue(g.HighRiskCooldownSeconds, DefaultHighRiskCooldownSeconds); cd < 0 || cd > 86400 {
		errs = append(errs, FieldError{
			Field:   "governance.high_risk_cooldown_seconds",
			Message: fmt.Sprintf("must be in [0, 86400], got %d", cd),
		})
	}
	if !strings.HasPrefix(g.ProfileExtension, ".") || len(g.ProfileExtension) < 2 ||
		strings.ContainsAny(g.ProfileExtension, `/\`) {
		errs = append(errs, FieldError{
			Field:   "governance.profile_extension",
			Message: fmt.Sprintf("must look like \".yaml\", got %q", g.ProfileExtension),
		})
	}

	seen := make(map[string]bool)
	for i, w := range g.FreezeWindows {
		field := fmt.Sprintf("governance.freeze_windows[%d]", i)
		if w.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "must not be empty"})
		} else if seen[w.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate window %q", w.Name)})
		}
		seen[w.Name] = true
		if _, err := cron.ParseStandard(w.Schedule); err != nil {
			errs = append(errs, FieldError{Field: field + ".schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
		if w.Duration <= 0 {
			errs = append(errs, FieldError{Field: field + ".duration", Message: "must be positive"})
		}
	}

	return errs
}

func validateAudit(a *AuditConfig) []FieldError {
	var errs []FieldError
	switch a.Backend {
	case "file":
		if a.FilePath == "" {
			errs = append(errs, FieldError{Field: "audit.file_path", Message: "must not be empty"})
		}
	case "sqlite":
		if a.SQLite.Path == "" {
			errs = append(errs, FieldError{Field: "audit.sqlite.path", Message: "must not be empty"})
		}
		if a.SQLite.BusyTimeout < 0 {
			errs = append(errs, FieldError{Field: "audit.sqlite.busy_timeout", Message: "must not be negative"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("must be one of [file, sqlite], got %q", a.Backend),
		})
	}
	return errs
}

func validateWatch(w *WatchConfig) []FieldError {
	if w.Debounce < 0 {
		return []FieldError{{Field: "watch.debounce", Message: "must not be negative"}}
	}
	return nil
}

func validateTelemetry(t *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(t.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("must be one of [debug, info, warn, error], got %q", t.Logging.Level),
		})
	}
	switch strings.ToLower(t.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("must be one of [json, text], got %q", t.Logging.Format),
		})
	}

	if BoolValue(t.Metrics.Enabled, DefaultMetricsEnabled) {
		if t.Metrics.ListenAddress == "" {
			errs = append(errs, FieldError{Field: "telemetry.metrics.listen_address", Message: "must not be empty"})
		}
		if !strings.HasPrefix(t.Metrics.Path, "/") {
			errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "must start with /"})
		}
	}

	if t.Tracing.SampleRatio < 0 || t.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: fmt.Sprintf("must be in [0, 1], got %g", t.Tracing.SampleRatio),
		})
	}
	if t.Tracing.Enabled && t.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "must not be empty when tracing is enabled"})
	}

	return errs
}
