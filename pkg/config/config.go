package config

import "time"

// Config is the root configuration.
type Config struct {
	// Paths locates the engine's durable state and its collaborators.
	Paths PathsConfig `yaml:"paths"`

	// Governance seeds the governance state and configures freeze windows.
	Governance GovernanceConfig `yaml:"governance"`

	// Audit selects the audit journal backend.
	Audit AuditConfig `yaml:"audit"`

	// GitOps commits profile writes into a git repository.
	GitOps GitOpsConfig `yaml:"gitops"`

	// Watch configures the live profile drift watcher.
	Watch WatchConfig `yaml:"watch"`

	// Telemetry configures logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// PathsConfig holds the directories the engine works on.
type PathsConfig struct {
	// ControlRoot holds governance state, drafts, backups and the audit journal.
	// Default: "data/control"
	ControlRoot string `yaml:"control_root"`

	// ConfigRoot holds the live profiles.
	// Default: "config"
	ConfigRoot string `yaml:"config_root"`

	// ReportsRoot holds the latest run verdict reports.
	// Default: "reports"
	ReportsRoot string `yaml:"reports_root"`
}

// GovernanceConfig seeds a freshly materialized governance state. Once the
// state record exists it is changed only through state updates.
type GovernanceConfig struct {
	// RequireLatestPass gates publish on the latest run verdict.
	// Default: true
	RequireLatestPass *bool `yaml:"require_latest_pass"`

	// AllowPassWithActions accepts PASS_WITH_ACTIONS verdicts.
	// Default: false
	AllowPassWithActions *bool `yaml:"allow_pass_with_actions"`

	// HighRiskTwoManRule requires distinct approvers for HIGH risk drafts.
	// Default: true
	HighRiskTwoManRule *bool `yaml:"high_risk_two_man_rule"`

	// HighRiskRequiredApprovals is the approver quorum, clamped to [2, 5].
	// Default: 2
	HighRiskRequiredApprovals int `yaml:"high_risk_required_approvals"`

	// HighRiskCooldownSeconds is the wait after the latest approval,
	// clamped to [0, 86400].
	// Default: 180
	HighRiskCooldownSeconds *int `yaml:"high_risk_cooldown_seconds"`

	// ProfileExtension is the required profile file extension.
	// Default: ".yaml"
	ProfileExtension string `yaml:"profile_extension"`

	// FreezeWindows are recurring periods during which profile writes are refused.
	FreezeWindows []FreezeWindowConfig `yaml:"freeze_windows"`
}

// FreezeWindowConfig is one recurring freeze window.
type FreezeWindowConfig struct {
	// Name identifies the window in errors and previews.
	Name string `yaml:"name"`

	// Schedule is a five-field cron expression marking each window start (UTC).
	Schedule string `yaml:"schedule"`

	// Duration is how long each window lasts.
	Duration time.Duration `yaml:"duration"`
}

// AuditConfig selects the audit journal backend.
type AuditConfig struct {
	// Backend is "file" (hash-chained JSONL) or "sqlite".
	// Default: "file"
	Backend string `yaml:"backend"`

	// FilePath is the JSONL journal path. Relative paths resolve against
	// paths.control_root.
	// Default: "audit.jsonl"
	FilePath string `yaml:"file_path"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig configures the sqlite audit backend.
type SQLiteConfig struct {
	// Path is the database file. Relative paths resolve against
	// paths.control_root.
	// Default: "audit.db"
	Path string `yaml:"path"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`

	// BusyTimeout is how long a writer waits for a lock.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// GitOpsConfig configures commits of profile writes.
type GitOpsConfig struct {
	// Enabled turns on git commits in paths.config_root.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// AuthorName is the committer name; the acting operator is the author.
	// Default: "governor"
	AuthorName string `yaml:"author_name"`

	// AuthorEmail is the commit email.
	// Default: "governor@localhost"
	AuthorEmail string `yaml:"author_email"`
}

// WatchConfig configures the drift watcher run by the daemon.
type WatchConfig struct {
	// Enabled turns on the drift watcher.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Debounce is the quiet period before a changed profile is checked.
	// Default: 200ms
	Debounce time.Duration `yaml:"debounce"`
}

// TelemetryConfig groups the observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures the slog logger.
type LoggingConfig struct {
	// Level is the minimum level: "debug", "info", "warn" or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	// Enabled turns on metric collection.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Namespace is the metric name prefix.
	// Default: "governor"
	Namespace string `yaml:"namespace"`

	// ListenAddress is where the daemon serves metrics and health endpoints.
	// Default: "127.0.0.1:9464"
	ListenAddress string `yaml:"listen_address"`

	// Path is the metrics endpoint path.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled turns on span export.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces sampled, in [0, 1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as service.name.
	// Default: "governor"
	ServiceName string `yaml:"service_name"`
}

// BoolValue dereferences b, returning def when b is nil.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// IntValue dereferences i, returning def when i is nil.
func IntValue(i *int, def int) int {
	if i == nil {
		return def
	}
	return *i
}
