package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/refwatch"
	"github.com/jpalmerr/refwatch/config"
	"github.com/jpalmerr/refwatch/internal/server"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd watches the configured refs and serves the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch refs and serve the status API",
	Long: `Watch the configured refs and serve their status over HTTP.

The server will:
  - Load configuration from the specified YAML file (and a .env beside it)
  - Subscribe to every configured ref and log each status change
  - Refresh stale statuses in the background
  - Refresh repository default branches with the indicator updater, if enabled
  - Serve /api/status, /api/sse, /api/indicators and /metrics on the configured port

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  refwatch serve -c config.yaml
  refwatch serve --config /etc/refwatch/config.yaml --log-format pretty`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

// loggerFor builds the logger from the --log-format and --debug flags,
// falling back to the config's log_format.
func loggerFor(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	format, _ := cmd.Flags().GetString("log-format")
	if format == "" {
		format = cfg.LogFormat
	}
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	return newLogger(format, level)
}

// logStatus returns a callback that logs every notification for a ref.
func logStatus(logger *slog.Logger, target config.Target) refwatch.StatusCallback {
	log := logger.With("repo", target.Repository.FullName(), "ref", target.Ref)
	return func(status *refwatch.CombinedStatus) {
		if status == nil {
			log.Info("ref status", "status", "none")
			return
		}
		log.Info("ref status",
			"status", status.Status,
			"conclusion", status.Conclusion,
			"checks", len(status.Checks),
		)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := loggerFor(cmd, cfg)
	logger.Info("config loaded",
		"accounts", len(cfg.Accounts),
		"repositories", len(cfg.Repositories),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	accounts := refwatch.NewAccounts(config.BuildAccounts(cfg)...)

	opts := append(config.StoreOptions(cfg),
		refwatch.WithLogger(logger),
		refwatch.WithMetrics(reg),
	)
	s, err := refwatch.New(accounts, opts...)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var subs []refwatch.Disposable
	for _, target := range config.BuildTargets(cfg) {
		subs = append(subs, s.Subscribe(target.Repository, target.Ref, logStatus(logger, target)))
	}

	s.StartBackgroundRefresh()

	// a nil *IndicatorUpdater must not end up inside the interface
	var indicators server.IndicatorControl
	var updater *refwatch.IndicatorUpdater
	if cfg.Indicators.Enabled {
		repos := config.BuildRepositories(cfg)
		indicatorOpts := append(config.IndicatorOptions(cfg),
			refwatch.WithIndicatorLogger(logger),
			refwatch.WithIndicatorMetrics(reg),
		)
		updater, err = refwatch.NewIndicatorUpdater(func() []refwatch.Repository { return repos }, refwatch.RefreshDefaultBranch(s), indicatorOpts...)
		if err != nil {
			s.Close()
			return fmt.Errorf("failed to create indicator updater: %w", err)
		}
		updater.Start(ctx)
		indicators = updater
	}

	srv := server.NewServer(s, indicators, reg, cfg.Port, logger)
	if err := srv.Start(ctx); err != nil {
		if updater != nil {
			updater.Stop()
		}
		s.Close()
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("refwatch started",
		"port", cfg.Port,
		"subscriptions", len(subs),
		"refresh_interval", cfg.RefreshInterval.Duration().String(),
		"indicators", cfg.Indicators.Enabled,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if updater != nil {
			updater.Stop()
		}
		for _, sub := range subs {
			sub.Dispose()
		}
		s.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out",
			"timeout", shutdownTimeout.String(),
			"action", "forcing exit",
		)
	}
	return nil
}
