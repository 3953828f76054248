package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ferrybridge/ferry/internal/config"
	"github.com/ferrybridge/ferry/internal/registry"
	"github.com/ferrybridge/ferry/internal/store"
)

// StoreStatus holds the reachability report for the configured record store.
type StoreStatus struct {
	Driver    string `json:"driver"`
	Target    string `json:"target"`
	Reachable bool   `json:"reachable"`
	Migration string `json:"migration,omitempty"`
	Error     string `json:"error,omitempty"`
}

// mappingStatus is the JSON shape of one registered model pair.
type mappingStatus struct {
	Resource string `json:"resource"`
	Record   string `json:"record"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// statusTimeout bounds the whole status probe, including the store
// connection retries.
const statusTimeout = 10 * time.Second

// NewStatusCmd creates the status subcommand with all flags configured.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show record store reachability and registered mappings",
		Long:  `Show whether the configured record store is reachable, its migration version, and the model mappings the bridge would register.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	// Register flags
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	appCfg, err := config.Load(resolveConfigPath(), cmd.Flags())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), statusTimeout)
	defer cancel()

	storeStatus := queryStoreStatus(ctx, appCfg)

	reg, err := buildRegistry(appCfg)
	if err != nil {
		return err
	}
	mappings := reg.Mappings()

	// Format and output the results
	var output string

	if cfg.jsonOutput {
		output, err = formatStatusJSON(storeStatus, mappings)
		if err != nil {
			return fmt.Errorf("failed to format JSON: %w", err)
		}
	} else {
		output = formatStatusTable(storeStatus, mappings)
	}

	cmd.Println(output)
	return nil
}

// queryStoreStatus opens the configured record store and pings it.
func queryStoreStatus(ctx context.Context, cfg *config.Config) StoreStatus {
	status := StoreStatus{
		Driver: cfg.Driver,
		Target: storeTarget(cfg),
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		status.Error = fmt.Sprintf("failed to open store: %v", err)
		return status
	}
	defer func() { _ = st.Close() }()

	if err := st.Ping(ctx); err != nil {
		status.Error = fmt.Sprintf("failed to ping store: %v", err)
		return status
	}

	status.Reachable = true
	if cfg.Driver == config.DriverPostgres {
		status.Migration = queryMigrationVersion(cfg.DatabaseURL)
	}
	return status
}

// queryMigrationVersion reports the schema version as a display string. The
// store may be reachable while the migration state is not, so failures are
// folded into the string instead of failing the command.
func queryMigrationVersion(databaseURL string) string {
	m, err := store.NewMigrator(databaseURL)
	if err != nil {
		return fmt.Sprintf("unknown: %v", err)
	}
	defer closeMigrator(m)

	v, dirty, err := m.Version()
	switch {
	case err != nil:
		return fmt.Sprintf("unknown: %v", err)
	case v == 0 && !dirty:
		return "none"
	case dirty:
		return fmt.Sprintf("%d (dirty)", v)
	default:
		return fmt.Sprintf("%d", v)
	}
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status StoreStatus, mappings []registry.Mapping) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "DRIVER\tTARGET\tSTORE\tMIGRATION")
	_, _ = fmt.Fprintln(w, "------\t------\t-----\t---------")

	if status.Reachable {
		migration := status.Migration
		if migration == "" {
			migration = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\treachable\t%s\n", status.Driver, status.Target, migration)
	} else {
		reason := "unreachable"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t-\n", status.Driver, status.Target, reason)
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "RESOURCE MODEL\tRECORD MODEL")
	_, _ = fmt.Fprintln(w, "--------------\t------------")
	if len(mappings) == 0 {
		_, _ = fmt.Fprintln(w, "(none)\t(none)")
	}
	for _, m := range mappings {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", m.ResourceModel, m.RecordModel)
	}

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status StoreStatus, mappings []registry.Mapping) (string, error) {
	ms := make([]mappingStatus, 0, len(mappings))
	for _, m := range mappings {
		ms = append(ms, mappingStatus{Resource: m.ResourceModel, Record: m.RecordModel})
	}

	payload := struct {
		Store    StoreStatus     `json:"store"`
		Mappings []mappingStatus `json:"mappings"`
	}{Store: status, Mappings: ms}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal status: %w", err)
	}
	return string(data), nil
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
