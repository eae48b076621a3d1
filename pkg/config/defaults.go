package config

import "time"

// Default values for configuration fields.
const (
	// Path defaults
	DefaultControlRoot = "data/control"
	DefaultConfigRoot  = "config"
	DefaultReportsRoot = "reports"

	// Governance defaults
	DefaultRequireLatestPass         = true
	DefaultAllowPassWithActions      = false
	DefaultHighRiskTwoManRule        = true
	DefaultHighRiskRequiredApprovals = 2
	DefaultHighRiskCooldownSeconds   = 180
	DefaultProfileExtension          = ".yaml"

	// Audit defaults
	DefaultAuditBackend      = "file"
	DefaultAuditFilePath     = "audit.jsonl"
	DefaultAuditSQLitePath   = "audit.db"
	DefaultAuditSQLiteWAL    = true
	DefaultAuditBusyTimeout  = 5 * time.Second
	DefaultGitOpsAuthorName  = "governor"
	DefaultGitOpsAuthorEmail = "governor@localhost"

	// Watch defaults
	DefaultWatchEnabled  = true
	DefaultWatchDebounce = 200 * time.Millisecond

	// Telemetry defaults
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultMetricsEnabled       = true
	DefaultMetricsNamespace     = "governor"
	DefaultMetricsListenAddress = "127.0.0.1:9464"
	DefaultMetricsPath          = "/metrics"
	DefaultTracingEndpoint      = "localhost:4317"
	DefaultTracingSampleRatio   = 1.0
	DefaultTracingServiceName   = "governor"
)

// ApplyDefaults fills every unset field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Paths.ControlRoot == "" {
		cfg.Paths.ControlRoot = DefaultControlRoot
	}
	if cfg.Paths.ConfigRoot == "" {
		cfg.Paths.ConfigRoot = DefaultConfigRoot
	}
	if cfg.Paths.ReportsRoot == "" {
		cfg.Paths.ReportsRoot = DefaultReportsRoot
	}

	g := &cfg.Governance
	if g.RequireLatestPass == nil {
		g.RequireLatestPass = boolPtr(DefaultRequireLatestPass)
	}
	if g.AllowPassWithActions == nil {
		g.AllowPassWithActions = boolPtr(DefaultAllowPassWithActions)
	}
	if g.HighRiskTwoManRule == nil {
		g.HighRiskTwoManRule = boolPtr(DefaultHighRiskTwoManRule)
	}
	if g.HighRiskRequiredApprovals == 0 {
		g.HighRiskRequiredApprovals = DefaultHighRiskRequiredApprovals
	}
	if g.HighRiskCooldownSeconds == nil {
		g.HighRiskCooldownSeconds = intPtr(DefaultHighRiskCooldownSeconds)
	}
	if g.ProfileExtension == "" {
		g.ProfileExtension = DefaultProfileExtension
	}

	a := &cfg.Audit
	if a.Backend == "" {
		a.Backend = DefaultAuditBackend
	}
	if a.FilePath == "" {
		a.FilePath = DefaultAuditFilePath
	}
	if a.SQLite.Path == "" {
		a.SQLite.Path = DefaultAuditSQLitePath
	}
	if a.SQLite.WALMode == nil {
		a.SQLite.WALMode = boolPtr(DefaultAuditSQLiteWAL)
	}
	if a.SQLite.BusyTimeout == 0 {
		a.SQLite.BusyTimeout = DefaultAuditBusyTimeout
	}

	if cfg.GitOps.AuthorName == "" {
		cfg.GitOps.AuthorName = DefaultGitOpsAuthorName
	}
	if cfg.GitOps.AuthorEmail == "" {
		cfg.GitOps.AuthorEmail = DefaultGitOpsAuthorEmail
	}

	if cfg.Watch.Enabled == nil {
		cfg.Watch.Enabled = boolPtr(DefaultWatchEnabled)
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}

	applyTelemetryDefaults(&cfg.Telemetry)
}

func applyTelemetryDefaults(t *TelemetryConfig) {
	if t.Logging.Level == "" {
		t.Logging.Level = DefaultLogLevel
	}
	if t.Logging.Format == "" {
		t.Logging.Format = DefaultLogFormat
	}

	if t.Metrics.Enabled == nil {
		t.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if t.Metrics.Namespace == "" {
		t.Metrics.Namespace = DefaultMetricsNamespace
	}
	if t.Metrics.ListenAddress == "" {
		t.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if t.Metrics.Path == "" {
		t.Metrics.Path = DefaultMetricsPath
	}

	if t.Tracing.Endpoint == "" {
		t.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if t.Tracing.SampleRatio == 0 {
		t.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if t.Tracing.ServiceName == "" {
		t.Tracing.ServiceName = DefaultTracingServiceName
	}
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func boolPtr(b bool) *bool { return &b }

func intPtr(i int) *int { return &i }
