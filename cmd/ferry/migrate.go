// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package main

import (
	"log/slog"
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ferrybridge/ferry/internal/config"
	"github.com/ferrybridge/ferry/internal/store"
)

// NewMigrateCmd creates the migrate subcommand and its children.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
		Long:  `Manage the records and grants schema in the PostgreSQL database.`,
	}

	cmd.PersistentFlags().String("database-url", "", "postgres connection URL")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  runMigrateUp,
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Long:  `Roll back every migration, dropping the records and grants tables.`,
			RunE:  runMigrateDown,
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations (negative n rolls back)",
			Args:  cobra.ExactArgs(1),
			RunE:  runMigrateSteps,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current migration version",
			RunE:  runMigrateVersion,
		},
	)

	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return err
	}

	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	cmd.Println("Rolling back all migrations...")
	if err := m.Down(); err != nil {
		return err
	}

	cmd.Println("Rollback completed successfully")
	return nil
}

func runMigrateSteps(cmd *cobra.Command, args []string) error {
	n, err := parseSteps(args[0])
	if err != nil {
		return err
	}

	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if n > 0 {
		cmd.Printf("Applying %d migration step(s)...\n", n)
	} else {
		cmd.Printf("Rolling back %d migration step(s)...\n", -n)
	}
	if err := m.Steps(n); err != nil {
		return err
	}

	cmd.Println("Migration steps completed successfully")
	return nil
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	v, dirty, err := m.Version()
	if err != nil {
		return err
	}

	switch {
	case v == 0 && !dirty:
		cmd.Println("No migrations applied")
	case dirty:
		cmd.Printf("Current migration version: %d (dirty)\n", v)
	default:
		cmd.Printf("Current migration version: %d\n", v)
	}
	return nil
}

// openMigrator resolves the database URL from the layered configuration and
// builds a migrator for it.
func openMigrator(cmd *cobra.Command) (*store.Migrator, error) {
	cfg, err := config.Load(resolveConfigPath(), cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("database-url is required for migrations")
	}
	return store.NewMigrator(cfg.DatabaseURL)
}

func closeMigrator(m *store.Migrator) {
	if err := m.Close(); err != nil {
		slog.Warn("error closing migrator", "error", err)
	}
}

// parseSteps parses the step count argument for migrate steps.
func parseSteps(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, oops.Code("INVALID_STEPS").With("value", s).Errorf("steps must be an integer")
	}
	if n == 0 {
		return 0, oops.Code("INVALID_STEPS").Errorf("steps must be non-zero")
	}
	return n, nil
}
