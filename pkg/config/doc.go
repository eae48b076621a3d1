// Package config loads the governor configuration.
//
// Configuration is read from a YAML file, completed with defaults, overridden
// from GOVERNOR_* environment variables and validated:
//
//	cfg, err := config.LoadConfigWithEnvOverrides("governor.yaml")
//
// Values are applied in this order, later overriding earlier:
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast, reporting every invalid field)
//
// Environment variables follow GOVERNOR_SECTION_FIELD, for example:
//
//   - GOVERNOR_PATHS_CONTROL_ROOT overrides paths.control_root
//   - GOVERNOR_GOVERNANCE_HIGH_RISK_COOLDOWN_SECONDS overrides governance.high_risk_cooldown_seconds
//   - GOVERNOR_AUDIT_BACKEND overrides audit.backend
//
// # Example Configuration
//
//	paths:
//	  control_root: "./data/control"
//	  config_root: "./config"
//	  reports_root: "./reports"
//
//	governance:
//	  high_risk_required_approvals: 2
//	  high_risk_cooldown_seconds: 180
//	  freeze_windows:
//	    - name: "nightly-settlement"
//	      schedule: "0 23 * * *"
//	      duration: "90m"
//
//	audit:
//	  backend: "file"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// For application-wide access use Initialize once at startup and GetConfig
// afterwards. Tests should pass explicit *Config values instead.
package config
