package main

import (
	"context"
	"net/url"
	"path/filepath"

	"github.com/samber/oops"

	"github.com/ferrybridge/ferry/internal/config"
	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/store"
	"github.com/ferrybridge/ferry/internal/xdg"
)

// openStore opens the record store selected by the configuration.
func openStore(ctx context.Context, cfg *config.Config) (record.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(pool), nil
	case config.DriverSQLite:
		path, err := resolveSQLitePath(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLiteStore(path)
	case config.DriverMemory:
		return record.NewMemoryStore(), nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("driver", cfg.Driver).Errorf("unknown store driver")
	}
}

// resolveSQLitePath falls back to ferry.db in the XDG data directory when no
// path is configured, creating the directory if needed.
func resolveSQLitePath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	dataDir := xdg.DataDir()
	if err := xdg.EnsureDir(dataDir); err != nil {
		return "", oops.Code("STORE_OPEN_FAILED").With("dir", dataDir).Wrap(err)
	}
	return filepath.Join(dataDir, "ferry.db"), nil
}

// storeTarget describes where the configured store lives, safe for logs and
// status output.
func storeTarget(cfg *config.Config) string {
	switch cfg.Driver {
	case config.DriverPostgres:
		return redactDatabaseURL(cfg.DatabaseURL)
	case config.DriverSQLite:
		if cfg.SQLitePath == "" {
			return filepath.Join(xdg.DataDir(), "ferry.db")
		}
		return cfg.SQLitePath
	default:
		return "in-memory"
	}
}

// redactDatabaseURL strips credentials from a connection URL. Unparseable
// URLs are reduced to the bare driver name so credentials never leak into
// output.
func redactDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "postgres"
	}
	return u.Redacted()
}
