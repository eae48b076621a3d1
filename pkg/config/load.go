package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "GOVERNOR_"

// LoadConfig loads configuration from a YAML file at path, applies defaults
// and validates the result. An empty path yields the default configuration.
// Environment variables are not consulted; use LoadConfigWithEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration like LoadConfig and then
// applies GOVERNOR_* environment overrides, which always take precedence over
// the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Paths
	envString("PATHS_CONTROL_ROOT", &cfg.Paths.ControlRoot)
	envString("PATHS_CONFIG_ROOT", &cfg.Paths.ConfigRoot)
	envString("PATHS_REPORTS_ROOT", &cfg.Paths.ReportsRoot)

	// Governance
	envBoolPtr("GOVERNANCE_REQUIRE_LATEST_PASS", &cfg.Governance.RequireLatestPass)
	envBoolPtr("GOVERNANCE_ALLOW_PASS_WITH_ACTIONS", &cfg.Governance.AllowPassWithActions)
	envBoolPtr("GOVERNANCE_HIGH_RISK_TWO_MAN_RULE", &cfg.Governance.HighRiskTwoManRule)
	envInt("GOVERNANCE_HIGH_RISK_REQUIRED_APPROVALS", &cfg.Governance.HighRiskRequiredApprovals)
	if val := os.Getenv(EnvPrefix + "GOVERNANCE_HIGH_RISK_COOLDOWN_SECONDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Governance.HighRiskCooldownSeconds = &i
		}
	}
	envString("GOVERNANCE_PROFILE_EXTENSION", &cfg.Governance.ProfileExtension)

	// Audit
	envString("AUDIT_BACKEND", &cfg.Audit.Backend)
	envString("AUDIT_FILE_PATH", &cfg.Audit.FilePath)
	envString("AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	envBoolPtr("AUDIT_SQLITE_WAL_MODE", &cfg.Audit.SQLite.WALMode)
	envDuration("AUDIT_SQLITE_BUSY_TIMEOUT", &cfg.Audit.SQLite.BusyTimeout)

	// GitOps
	envBool("GITOPS_ENABLED", &cfg.GitOps.Enabled)
	envString("GITOPS_AUTHOR_NAME", &cfg.GitOps.AuthorName)
	envString("GITOPS_AUTHOR_EMAIL", &cfg.GitOps.AuthorEmail)

	// Watch
	envBoolPtr("WATCH_ENABLED", &cfg.Watch.Enabled)
	envDuration("WATCH_DEBOUNCE", &cfg.Watch.Debounce)

	// Telemetry
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	envBoolPtr("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_NAMESPACE", &cfg.Telemetry.Metrics.Namespace)
	envString("TELEMETRY_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envBool("TELEMETRY_TRACING_INSECURE", &cfg.Telemetry.Tracing.Insecure)
	envString("TELEMETRY_TRACING_SERVICE_NAME", &cfg.Telemetry.Tracing.ServiceName)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// Malformed override values are ignored and the loaded value is kept.

func envString(key string, dst *string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(key string, dst **bool) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		}
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
