package governance

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"aitrade-hq/governor/pkg/config"
	"aitrade-hq/governor/pkg/gitops"
	"aitrade-hq/governor/pkg/governance/audit"
	"aitrade-hq/governor/pkg/governance/guard"
	"aitrade-hq/governor/pkg/governance/state"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/reports"
	"aitrade-hq/governor/pkg/store"
	"aitrade-hq/governor/pkg/telemetry/metrics"
	"aitrade-hq/governor/pkg/telemetry/tracing"
)

// Runtime is a Service wired from configuration, plus the resources it owns.
type Runtime struct {
	*Service

	// Profiles is the filesystem profile store, for the drift watcher.
	Profiles *profile.FSStore

	// Metrics accumulates this process's metrics with those of every other
	// process sharing the control root.
	Metrics *metrics.Spool

	journal audit.Journal
}

// Open wires a Service from cfg. metrics and tracer may be nil.
func Open(cfg *config.Config, logger *slog.Logger, collector *metrics.Collector, tracer *tracing.Tracer) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	gov := cfg.Governance

	records, err := store.New(cfg.Paths.ControlRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open control root: %w", err)
	}

	names := profile.NewNameRule(gov.ProfileExtension)
	fsProfiles, err := profile.NewFSStore(cfg.Paths.ConfigRoot, names, logger, profile.WithWrittenRecords(records))
	if err != nil {
		return nil, err
	}

	journal, err := openJournal(cfg, logger)
	if err != nil {
		return nil, err
	}

	var profiles profile.Store = fsProfiles
	if cfg.GitOps.Enabled {
		repo, err := gitops.Open(cfg.Paths.ConfigRoot, gitops.Config{
			AuthorName:  cfg.GitOps.AuthorName,
			AuthorEmail: cfg.GitOps.AuthorEmail,
		}, logger)
		if err != nil {
			journal.Close()
			return nil, err
		}
		profiles = gitops.NewRecordingStore(fsProfiles, repo, journal, logger)
	}

	windows := make([]guard.FreezeWindow, 0, len(gov.FreezeWindows))
	for _, w := range gov.FreezeWindows {
		windows = append(windows, guard.FreezeWindow{Name: w.Name, Schedule: w.Schedule, Duration: w.Duration})
	}
	freeze, err := guard.NewFreezeCalendar(windows)
	if err != nil {
		journal.Close()
		return nil, err
	}

	svc, err := New(Deps{
		Records:       records,
		Profiles:      profiles,
		Names:         names,
		Reports:       reports.NewFSSource(cfg.Paths.ReportsRoot, logger),
		Journal:       journal,
		StateDefaults: StateDefaults(gov),
		Freeze:        freeze,
		Metrics:       collector,
		Tracer:        tracer,
		Logger:        logger,
	})
	if err != nil {
		journal.Close()
		return nil, err
	}

	return &Runtime{
		Service:  svc,
		Profiles: fsProfiles,
		Metrics:  metrics.NewSpool(records, logger),
		journal:  journal,
	}, nil
}

// Close releases the audit journal.
func (r *Runtime) Close() error {
	if r.journal == nil {
		return nil
	}
	return r.journal.Close()
}

// StateDefaults maps the governance config onto the state seed.
func StateDefaults(gov config.GovernanceConfig) state.Defaults {
	d := state.DefaultDefaults()
	d.RequireLatestPass = config.BoolValue(gov.RequireLatestPass, d.RequireLatestPass)
	d.AllowPassWithActions = config.BoolValue(gov.AllowPassWithActions, d.AllowPassWithActions)
	d.HighRiskTwoManRule = config.BoolValue(gov.HighRiskTwoManRule, d.HighRiskTwoManRule)
	if gov.HighRiskRequiredApprovals != 0 {
		d.HighRiskRequiredApprovals = gov.HighRiskRequiredApprovals
	}
	d.HighRiskCooldownSeconds = config.IntValue(gov.HighRiskCooldownSeconds, d.HighRiskCooldownSeconds)
	return d
}

func openJournal(cfg *config.Config, logger *slog.Logger) (audit.Journal, error) {
	a := cfg.Audit
	switch a.Backend {
	case "", "file":
		return audit.NewFileJournal(underRoot(cfg.Paths.ControlRoot, a.FilePath), logger)
	case "sqlite":
		sc := audit.DefaultSQLiteConfig()
		sc.Path = underRoot(cfg.Paths.ControlRoot, a.SQLite.Path)
		sc.WALMode = config.BoolValue(a.SQLite.WALMode, sc.WALMode)
		if a.SQLite.BusyTimeout > 0 {
			sc.BusyTimeout = a.SQLite.BusyTimeout
		}
		return audit.NewSQLiteJournal(sc, logger)
	default:
		return nil, errors.New("unknown audit backend: " + a.Backend)
	}
}

func underRoot(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
