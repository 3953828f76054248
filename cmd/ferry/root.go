package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ferrybridge/ferry/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigPath returns the config file to load: the --config flag when
// set, otherwise ferry.yaml in the XDG config directory when one exists.
func resolveConfigPath() string {
	if configFile != "" {
		return configFile
	}
	path := filepath.Join(xdg.ConfigDir(), "ferry.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// NewRootCmd creates the root command for the ferry CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ferry",
		Short: "Ferry - a bridge between legacy records and normalized resources",
		Long: `Ferry keeps a legacy repository usable through a normalized resource
model, converting attributes and access grants in both directions so
either side can read what the other writes.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default ferry.yaml in the XDG config dir)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewVerifyCmd())

	return cmd
}
