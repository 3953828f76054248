// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ferrybridge/ferry/internal/bridge"
	"github.com/ferrybridge/ferry/internal/config"
	"github.com/ferrybridge/ferry/internal/logging"
	"github.com/ferrybridge/ferry/internal/observability"
	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/registry"
	"github.com/ferrybridge/ferry/internal/store"
	"github.com/ferrybridge/ferry/internal/transform"
)

// serveConfig holds flag values local to the serve command. Everything else
// comes through the layered configuration.
type serveConfig struct {
	sweepInterval time.Duration
}

// Validate checks that the configuration is valid.
func (cfg *serveConfig) Validate() error {
	if cfg.sweepInterval < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("sweep-interval cannot be negative, got %s", cfg.sweepInterval)
	}
	return nil
}

const (
	// Shutdown budget for the observability server.
	serveShutdownTimeout = 5 * time.Second

	// How long a readiness probe may wait on the store.
	readinessPingTimeout = 2 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge server (record store, metrics, health)",
		Long: `Start the bridge server. It opens the configured record store, applies
pending migrations unless FERRY_DB_AUTO_MIGRATE=false, and serves Prometheus
metrics and health endpoints until interrupted. With --sweep-interval set it
also re-converts every stored record on that cadence and reports records the
current mappings can no longer convert.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	defaults := config.Default()
	cmd.Flags().String("database-url", defaults.DatabaseURL, "postgres connection URL")
	cmd.Flags().String("driver", defaults.Driver, "record store driver (postgres, sqlite, or memory)")
	cmd.Flags().String("sqlite-path", defaults.SQLitePath, "sqlite database file path (default ferry.db in the XDG data dir)")
	cmd.Flags().String("log-format", defaults.LogFormat, "log format (json or text)")
	cmd.Flags().String("metrics-addr", defaults.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().Bool("strict-schema", defaults.StrictSchema, "fail conversions on attributes the target schema rejects")
	cmd.Flags().Bool("strict-registry", defaults.StrictRegistry, "fail startup on duplicate model mappings")
	cmd.Flags().DurationVar(&cfg.sweepInterval, "sweep-interval", 0, "how often to re-verify stored records (0 = disabled)")

	return cmd
}

// runServeWithDeps starts the bridge server with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *serveConfig, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}

	// Set up default factories
	if deps.StoreFactory == nil {
		deps.StoreFactory = openStore
	}
	if deps.MigratorFactory == nil {
		deps.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if deps.AutoMigrateGetter == nil {
		deps.AutoMigrateGetter = parseAutoMigrate
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	appCfg, err := config.Load(resolveConfigPath(), cmd.Flags())
	if err != nil {
		return err
	}
	if err := appCfg.CheckRequires(version); err != nil {
		return err
	}

	logging.SetDefault("ferry", version, appCfg.LogFormat)

	slog.Info("starting bridge server",
		"driver", appCfg.Driver,
		"log_format", appCfg.LogFormat,
	)

	if appCfg.Driver == config.DriverPostgres && deps.AutoMigrateGetter() {
		if err := runAutoMigration(appCfg.DatabaseURL, deps.MigratorFactory); err != nil {
			return err
		}
	}

	st, err := deps.StoreFactory(ctx, appCfg)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", appCfg.Driver).Wrap(err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Warn("error closing record store", "error", closeErr)
		}
	}()

	slog.Info("record store ready", "driver", appCfg.Driver, "target", storeTarget(appCfg))

	svc, reg, err := assembleBridge(appCfg, st)
	if err != nil {
		return err
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Start observability server if configured
	var obsServer ObservabilityServer
	if appCfg.MetricsAddr != "" {
		obsServer = deps.ObservabilityServerFactory(appCfg.MetricsAddr, func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), readinessPingTimeout)
			defer pingCancel()
			return st.Ping(pingCtx) == nil
		})
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", appCfg.MetricsAddr).Wrap(startErr)
		}
		// Monitor observability server errors - cancel context on error
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	if cfg.sweepInterval > 0 {
		go runPeriodicSweeps(ctx, svc, reg.Mappings(), cfg.sweepInterval)
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Bridge server started")
	slog.Info("bridge server ready",
		"driver", appCfg.Driver,
		"mappings", len(reg.Mappings()),
	)

	// Wait for shutdown signal or cancellation
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	// Graceful shutdown
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// buildRegistry seeds a model registry from the configured mappings.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	var regOpts []registry.Option
	if cfg.StrictRegistry {
		regOpts = append(regOpts, registry.WithStrictOverwrite())
	}
	reg := registry.New(regOpts...)
	for _, m := range cfg.Mappings {
		if err := reg.Register(m.Resource, m.Record); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// assembleBridge builds the registry, transformer, and bridge service from
// the configuration. Mapping conflicts and bad attribute patterns surface
// here, before the process commits to anything.
func assembleBridge(cfg *config.Config, st record.Store) (*bridge.Service, *registry.Registry, error) {
	reg, err := buildRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	var transformOpts []transform.TransformerOption
	if len(cfg.Schemas) > 0 {
		schemas, err := transform.NewStaticSchemas(cfg.Schemas)
		if err != nil {
			return nil, nil, oops.Code("CONFIG_INVALID").With("section", "schemas").Wrap(err)
		}
		transformOpts = append(transformOpts, transform.WithSchemas(schemas))
	}
	if cfg.StrictSchema {
		transformOpts = append(transformOpts, transform.WithStrictSchema())
	}

	svc := bridge.NewService(bridge.ServiceConfig{
		Registry:    reg,
		Transformer: transform.New(reg, transformOpts...),
		Store:       st,
		Logger:      slog.Default(),
	})
	return svc, reg, nil
}

// runPeriodicSweeps re-verifies the stored records on a fixed cadence until
// the context is cancelled. Failures are logged and counted in the
// conversion metrics; they never stop the server.
func runPeriodicSweeps(ctx context.Context, svc *bridge.Service, mappings []registry.Mapping, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result := sweepModels(ctx, svc, mappings)
			failures := result.failures()
			if len(failures) == 0 {
				slog.Info("sweep complete",
					"models", len(result.models),
					"records", result.records(),
				)
				continue
			}
			for _, f := range failures {
				slog.Error("sweep found unconvertible records",
					"resource_model", f.ResourceModel,
					"error", f.Err,
				)
			}
		case <-ctx.Done():
			return
		}
	}
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error, so a failing server triggers graceful shutdown of the
// whole process. It exits when an error arrives, the channel closes, or the
// context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			// Channel closed, server stopped gracefully
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
