// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package main

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/samber/oops"
)

// autoMigrateEnvVar controls whether serve applies pending migrations on
// startup. Accepts strconv.ParseBool values; defaults to true when unset.
const autoMigrateEnvVar = "FERRY_DB_AUTO_MIGRATE"

// parseAutoMigrate reads the auto-migration setting from the environment.
// Unset means enabled. An unparseable value is logged and treated as
// enabled rather than silently disabling migrations.
func parseAutoMigrate() bool {
	val, ok := os.LookupEnv(autoMigrateEnvVar)
	if !ok {
		return true
	}
	enabled, err := strconv.ParseBool(val)
	if err != nil {
		slog.Warn("unrecognized value for auto-migrate setting, defaulting to enabled",
			"var", autoMigrateEnvVar,
			"value", val,
		)
		return true
	}
	return enabled
}

// runAutoMigration applies all pending migrations using the provided
// migrator factory. A close failure after a successful run is logged but
// does not fail the operation.
func runAutoMigration(databaseURL string, factory func(string) (AutoMigrator, error)) error {
	slog.Info("running database auto-migration")

	m, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			slog.Warn("error closing migrator, database connection may leak", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}

	slog.Info("database auto-migration complete")
	return nil
}
