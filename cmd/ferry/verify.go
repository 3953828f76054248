// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ferrybridge/ferry/internal/bridge"
	"github.com/ferrybridge/ferry/internal/config"
	"github.com/ferrybridge/ferry/internal/registry"
)

// Default timeout for verify command.
const defaultVerifyTimeout = 5 * time.Minute

// verifyConfig holds configuration for the verify command.
type verifyConfig struct {
	timeout time.Duration
}

// NewVerifyCmd creates the verify subcommand.
func NewVerifyCmd() *cobra.Command {
	cfg := &verifyConfig{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify every stored record still converts",
		Long: `Reads every record of every registered mapping back through the bridge and
reports models whose records no longer convert.
Exits with code 0 on success, non-zero on failure.

Useful in CI pipelines to catch mapping and schema changes that strand
existing records:
  ferry verify --config ferry.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultVerifyTimeout, "timeout for the full sweep (e.g., 1m, 5m)")

	return cmd
}

func runVerify(cmd *cobra.Command, cfg *verifyConfig) error {
	appCfg, err := config.Load(resolveConfigPath(), cmd.Flags())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	st, err := openStore(ctx, appCfg)
	if err != nil {
		return oops.Code("STORE_OPEN_FAILED").With("driver", appCfg.Driver).Wrap(err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Warn("error closing record store", "error", closeErr)
		}
	}()

	svc, reg, err := assembleBridge(appCfg, st)
	if err != nil {
		return err
	}

	mappings := reg.Mappings()
	if len(mappings) == 0 {
		cmd.Println("No mappings registered, nothing to verify")
		return nil
	}

	result := sweepModels(ctx, svc, mappings)
	for _, m := range result.models {
		if m.Err != nil {
			cmd.Printf("FAIL  %s (%s): %v\n", m.ResourceModel, m.RecordModel, m.Err)
			continue
		}
		cmd.Printf("ok    %s (%s): %d record(s)\n", m.ResourceModel, m.RecordModel, m.Records)
	}

	failures := result.failures()
	if len(failures) > 0 {
		return oops.Code("VERIFY_FAILED").
			With("failed_models", len(failures)).
			Errorf("verification failed: %d of %d models have unconvertible records", len(failures), len(result.models))
	}

	cmd.Printf("Verified %d record(s) across %d model(s)\n", result.records(), len(result.models))
	return nil
}

// modelSweep is the outcome of converting every record of one mapping.
type modelSweep struct {
	ResourceModel string
	RecordModel   string
	Records       int
	Err           error
}

// sweepResult aggregates the sweeps of all registered mappings.
type sweepResult struct {
	models []modelSweep
}

// failures returns the sweeps that could not convert all their records.
func (r sweepResult) failures() []modelSweep {
	var failed []modelSweep
	for _, m := range r.models {
		if m.Err != nil {
			failed = append(failed, m)
		}
	}
	return failed
}

// records returns the total number of records converted successfully.
func (r sweepResult) records() int {
	total := 0
	for _, m := range r.models {
		if m.Err == nil {
			total += m.Records
		}
	}
	return total
}

// sweepModels reads every record of every mapping back through the bridge.
// A model's sweep stops at its first unconvertible record; the remaining
// models are still swept.
func sweepModels(ctx context.Context, svc *bridge.Service, mappings []registry.Mapping) sweepResult {
	result := sweepResult{models: make([]modelSweep, 0, len(mappings))}
	for _, m := range mappings {
		sweep := modelSweep{ResourceModel: m.ResourceModel, RecordModel: m.RecordModel}
		resources, err := svc.Resources(ctx, m.ResourceModel)
		if err != nil {
			sweep.Err = err
		} else {
			sweep.Records = len(resources)
		}
		result.models = append(result.models, sweep)
	}
	return result
}
