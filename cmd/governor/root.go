package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"aitrade-hq/governor/pkg/cli"
	"aitrade-hq/governor/pkg/config"
	"aitrade-hq/governor/pkg/governance"
	"aitrade-hq/governor/pkg/telemetry/logging"
	"aitrade-hq/governor/pkg/telemetry/metrics"
	"aitrade-hq/governor/pkg/telemetry/tracing"
)

const defaultConfigFile = "governor.yaml"

var (
	// Global flags
	cfgFile      string
	actorFlag    string
	outputFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Governor - configuration governance for trading-bot profiles",
	Long: `Governor mediates every change to a live trading-bot profile through a
draft, validate, preview, approve and publish pipeline.

High-risk changes need approvals from distinct actors and a cooldown, every
publish pins the exact diff that was reviewed, every overwrite is backed up
and every change is recorded in a tamper-evident audit journal.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "acting identity (default $GOVERNOR_ACTOR)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", string(cli.FormatText), "output format (text, json)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override log level (debug, info, warn, error)")
}

// app is what a command needs once configuration is loaded.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	tracer    *tracing.Tracer
	collector *metrics.Collector
	rt        *governance.Runtime
	format    cli.OutputFormat
	out       io.Writer
}

// loadConfig reads .env files, then the config file with GOVERNOR_*
// overrides. A missing default config file means built-in defaults; an
// explicitly named one must exist.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loadDotEnv()

	path := cfgFile
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	if err := config.Initialize(path); err != nil {
		return nil, cli.NewConfigError("config", err.Error())
	}
	cfg := config.GetConfig()
	if logLevelFlag != "" {
		cfg.Telemetry.Logging.Level = logLevelFlag
	}
	return cfg, nil
}

// loadDotEnv loads .env.local and .env when present. Variables already set
// in the environment win.
func loadDotEnv() {
	var found []string
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			found = append(found, f)
		}
	}
	if len(found) > 0 {
		_ = godotenv.Load(found...)
	}
}

// openApp wires the governance runtime for cfg. collector may be nil; when
// set it is flushed into the metrics spool on close.
func openApp(cmd *cobra.Command, cfg *config.Config, collector *metrics.Collector) (*app, error) {
	format, err := cli.ParseFormat(outputFlag)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.FromConfig(cfg.Telemetry.Logging))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	tracer, err := tracing.New(cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, err
	}

	rt, err := governance.Open(cfg, logger, collector, tracer)
	if err != nil {
		_ = tracer.Shutdown(context.Background())
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		tracer:    tracer,
		collector: collector,
		rt:        rt,
		format:    format,
		out:       cmd.OutOrStdout(),
	}, nil
}

func (a *app) close() {
	if a.collector != nil {
		if err := a.rt.Metrics.Flush(a.collector.Registry()); err != nil {
			a.logger.Warn("failed to flush metrics", "error", err)
		}
	}
	if err := a.rt.Close(); err != nil {
		a.logger.Error("failed to close audit journal", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to flush traces", "error", err)
	}
}

func (a *app) print(data any, tbl *cli.Table) error {
	return cli.Print(a.out, a.format, data, tbl)
}

// actor is the normalized identity for write commands.
func actor() string {
	raw := actorFlag
	if raw == "" {
		raw = os.Getenv(config.EnvPrefix + "ACTOR")
	}
	return governance.NormalizeActor(raw)
}

// withApp adapts fn to a cobra RunE that opens and closes the runtime.
func withApp(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd, cfg, metrics.NewCollector(cfg.Telemetry.Metrics, nil))
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		return fn(ctx, a, args)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
