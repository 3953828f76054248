// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/ferrybridge/ferry/internal/acl"
	"github.com/ferrybridge/ferry/internal/bridge"
	"github.com/ferrybridge/ferry/internal/config"
	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/registry"
	"github.com/ferrybridge/ferry/internal/resource"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// Well-known IDs for the demo resources. Fixed IDs keep the command
// idempotent: a second run finds the first run's rows instead of creating
// duplicates. Both are valid 26-character Crockford base32 ULIDs.
const (
	seedCollectionID = "01J7SEED0000000000C0000001"
	seedWorkID       = "01J7SEED0000000000W0000002"
)

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	timeout  time.Duration
	noStrict bool
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the record store with demo resources",
		Long: `Creates a demo collection and a demo work in the configured record store,
converted through the bridge so the stored rows look exactly like production
writes. This command is idempotent - it will not create duplicates if run
multiple times. On repeat runs the stored data is compared against the
definitions; drift fails the command unless --no-strict is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, args, cfg)
		},
	}

	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for store operations (e.g., 30s, 1m)")
	cmd.Flags().BoolVar(&cfg.noStrict, "no-strict", false, "warn instead of failing when stored seed data has drifted")

	return cmd
}

func runSeed(cmd *cobra.Command, _ []string, cfg *seedConfig) error {
	appCfg, err := config.Load(resolveConfigPath(), cmd.Flags())
	if err != nil {
		return err
	}

	// Add timeout to prevent indefinite hangs
	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Opening record store...")
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
	if err := ensureSeedMappings(reg); err != nil {
		return err
	}

	strict := !cfg.noStrict
	for _, want := range demoResources() {
		if err := seedResource(ctx, cmd, svc, st, want, strict); err != nil {
			return err
		}
	}

	cmd.Println("Record store seeding complete!")
	return nil
}

// ensureSeedMappings registers the model pairs the demo resources need.
// Pairs already present from the configuration are no-ops; under strict
// overwrite a conflicting configured mapping surfaces as DUPLICATE_MAPPING.
func ensureSeedMappings(reg *registry.Registry) error {
	for _, pair := range [][2]string{
		{"Collection", "AdminCollection"},
		{"Monograph", "GenericWork"},
	} {
		if err := reg.Register(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// demoResources returns the seed definitions. Grants reference the fixed
// IDs directly so the stored rows carry stable access entries.
func demoResources() []*resource.Resource {
	collectionID := resource.ID(seedCollectionID)
	workID := resource.ID(seedWorkID)

	return []*resource.Resource{
		{
			ID:    collectionID,
			Model: "Collection",
			New:   true,
			Attributes: map[string][]string{
				"title":       {"Open Repository Demo Collection"},
				"description": {"Sample objects for exercising the bridge without touching production data."},
			},
			Permissions: []resource.Permission{
				{Agent: "group/admins", Level: acl.LevelManage, AccessTo: collectionID, New: true},
			},
		},
		{
			ID:    workID,
			Model: "Monograph",
			New:   true,
			Attributes: map[string][]string{
				"title":     {"A Field Guide to River Crossings"},
				"creator":   {"Santos, Alejandra"},
				"member_of": {seedCollectionID},
			},
			Permissions: []resource.Permission{
				{Agent: "group/editors", Level: acl.LevelEdit, AccessTo: workID, New: true},
				{Agent: "asantos", Level: acl.LevelRead, AccessTo: workID, New: true},
			},
		},
	}
}

// seedResource creates want through the bridge when absent. When the record
// already exists the stored state is re-read through the bridge and compared
// against the definition.
func seedResource(ctx context.Context, cmd *cobra.Command, svc *bridge.Service, st record.Store, want *resource.Resource, strict bool) error {
	_, err := st.Get(ctx, string(want.ID))
	switch {
	case errors.Is(err, record.ErrNotFound):
		created, saveErr := svc.Save(ctx, want)
		if saveErr != nil {
			return oops.Code("SEED_FAILED").
				With("operation", "create seed resource").
				With("resource_id", want.ID).
				Wrap(saveErr)
		}
		cmd.Printf("Created %s: %s\n", created.Model, created.First("title"))
		slog.Info("created seed resource", "resource_id", created.ID, "model", created.Model)
		return nil
	case err != nil:
		return oops.Code("SEED_FAILED").
			With("operation", "check for existing resource").
			With("resource_id", want.ID).
			Wrap(err)
	}

	cmd.Printf("%s already exists, skipping\n", want.Model)

	existing, err := svc.Resource(ctx, want.ID)
	if err != nil {
		logVerificationFailure(cmd, want.ID, err)
		return nil
	}
	return checkSeedMismatches(cmd, want.ID, collectMismatches(want, existing), strict)
}

// collectMismatches compares the stored resource against the seed definition
// and returns one line per drifted field, in stable order.
func collectMismatches(want, got *resource.Resource) []string {
	var mismatches []string

	if got.Model != want.Model {
		mismatches = append(mismatches, fmt.Sprintf("model: expected %q, got %q", want.Model, got.Model))
	}

	keys := make([]string, 0, len(want.Attributes))
	for k := range want.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !slices.Equal(got.Attribute(k), want.Attribute(k)) {
			mismatches = append(mismatches, fmt.Sprintf("attribute %s: expected %v, got %v", k, want.Attribute(k), got.Attribute(k)))
		}
	}

	if len(got.Permissions) != len(want.Permissions) {
		mismatches = append(mismatches, fmt.Sprintf("permissions: expected %d, got %d", len(want.Permissions), len(got.Permissions)))
	}

	return mismatches
}

// checkSeedMismatches reports drift between stored seed data and the current
// definitions. Strict mode fails the command so drift shows up in
// provisioning scripts; otherwise each drifted field is a warning.
func checkSeedMismatches(cmd *cobra.Command, id resource.ID, mismatches []string, strict bool) error {
	if len(mismatches) == 0 {
		return nil
	}

	if strict {
		return oops.Code("SEED_MISMATCH").
			With("resource_id", id).
			With("mismatches", len(mismatches)).
			Errorf("stored seed data has drifted: %s", strings.Join(mismatches, "; "))
	}

	for _, m := range mismatches {
		cmd.PrintErrf("WARNING: seed drift for %s: %s\n", id, m)
		slog.Warn("seed resource drifted", "resource_id", id, "mismatch", m)
	}
	return nil
}

// logVerificationFailure notes that an existing seed resource could not be
// read back for comparison. Not fatal: the rows are there, only the drift
// check is skipped.
func logVerificationFailure(cmd *cobra.Command, id resource.ID, err error) {
	cmd.PrintErrf("WARNING: could not verify existing seed resource %s\n", id)
	slog.Warn("could not verify existing seed resource",
		"resource_id", id,
		"error", err)
}
