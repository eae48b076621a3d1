package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"aitrade-hq/governor/pkg/cli"
	"aitrade-hq/governor/pkg/config"
	"aitrade-hq/governor/pkg/profile"
	"aitrade-hq/governor/pkg/telemetry/health"
	"aitrade-hq/governor/pkg/telemetry/metrics"
)

const (
	healthCheckTimeout = 2 * time.Second
	shutdownTimeout    = 10 * time.Second
)

var runFlags struct {
	listenAddress string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve metrics and health endpoints and watch for profile drift",
	Long: `Run the governor daemon.

The daemon serves Prometheus metrics and the /health, /ready and /version
endpoints, and watches the live profile directory. A profile changed by
anything other than a publish or rollback is recorded as a profile.drift
audit event.

Examples:
  # Start with default config
  governor run

  # Override the listen address
  governor run --listen 0.0.0.0:9464

  # Validate config without starting
  governor run --dry-run`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override metrics and health listen address")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and open stores without starting")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	a, err := openApp(cmd, cfg, collector)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger.With("component", "daemon")

	if runFlags.listenAddress != "" {
		cfg.Telemetry.Metrics.ListenAddress = runFlags.listenAddress
	}
	if runFlags.dryRun {
		fmt.Fprintln(a.out, "✓ Configuration valid")
		return nil
	}

	checker := health.New(healthCheckTimeout)
	checker.RegisterCheck("control_root", health.WritableCheck(cfg.Paths.ControlRoot))
	checker.RegisterCheck("config_root", health.DirCheck(cfg.Paths.ConfigRoot))
	checker.RegisterCheck("state", func(ctx context.Context) error {
		_, err := a.rt.GetState(ctx)
		return err
	})

	mux := http.NewServeMux()
	health.Register(mux, checker, Version)
	if config.BoolValue(cfg.Telemetry.Metrics.Enabled, config.DefaultMetricsEnabled) {
		mux.Handle(cfg.Telemetry.Metrics.Path, a.rt.Metrics.Handler(collector.Registry()))
	}

	srv := &http.Server{
		Addr:              cfg.Telemetry.Metrics.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("serving metrics and health", "address", srv.Addr, "metrics_path", cfg.Telemetry.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if config.BoolValue(cfg.Watch.Enabled, config.DefaultWatchEnabled) {
		watcher := profile.NewDriftWatcher(a.rt.Profiles, cfg.Watch.Debounce, a.logger)
		g.Go(func() error {
			return watcher.Watch(gctx, a.rt.RecordDrift)
		})
	}

	logger.Info("governor started", "version", Version, "config_root", cfg.Paths.ConfigRoot)
	if err := g.Wait(); err != nil {
		return cli.NewCommandError("run", err)
	}
	logger.Info("governor stopped")
	return nil
}
