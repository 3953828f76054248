package main

import (
	"context"

	"github.com/ferrybridge/ferry/internal/config"
	"github.com/ferrybridge/ferry/internal/observability"
	"github.com/ferrybridge/ferry/internal/record"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// StoreFactory opens the record store selected by the configuration.
	// Default: openStore
	StoreFactory func(ctx context.Context, cfg *config.Config) (record.Store, error)

	// MigratorFactory creates a migrator for startup auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// AutoMigrateGetter reports whether startup auto-migration is enabled.
	// Default: parseAutoMigrate
	AutoMigrateGetter func() bool

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// AutoMigrator wraps the migrator methods used by startup auto-migration.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}
