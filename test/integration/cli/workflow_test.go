// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

//go:build integration

package cli_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// ferryCmd builds a command that runs the ferry binary from source with the
// given config file.
func ferryCmd(ctx context.Context, cfgPath string, args ...string) *exec.Cmd {
	full := append([]string{"run", ".", "--config", cfgPath}, args...)
	cmd := exec.CommandContext(ctx, "go", full...)
	cmd.Dir = "../../../cmd/ferry"
	return cmd
}

// writeCLIConfig writes a postgres config pointing at the suite's container,
// carrying the demo mappings.
func writeCLIConfig(dir string) (string, error) {
	path := filepath.Join(dir, "ferry.yaml")
	content := fmt.Sprintf(`driver: postgres
database-url: %q
mappings:
  - resource: Collection
    record: AdminCollection
  - resource: Monograph
    record: GenericWork
`, env.connStr)
	return path, os.WriteFile(path, []byte(content), 0o600)
}

var _ = Describe("Ferry CLI workflow", func() {
	var (
		ctx     context.Context
		cfgPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)

		var err error
		cfgPath, err = writeCLIConfig(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("migrate", func() {
		It("applies and reports the schema version", func() {
			output, err := ferryCmd(ctx, cfgPath, "migrate", "up").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", string(output))
			Expect(string(output)).To(ContainSubstring("Migrations completed successfully"))

			output, err = ferryCmd(ctx, cfgPath, "migrate", "version").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "migrate version failed: %s", string(output))
			Expect(string(output)).To(ContainSubstring("Current migration version: 2"))

			var exists bool
			err = env.pool.QueryRow(ctx,
				"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'grants')",
			).Scan(&exists)
			Expect(err).NotTo(HaveOccurred())
			Expect(exists).To(BeTrue(), "migrations should create the grants table")
		})
	})

	Describe("seed", func() {
		BeforeEach(func() {
			output, err := ferryCmd(ctx, cfgPath, "migrate", "up").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", string(output))
		})

		It("creates the demo records with their grants", func() {
			output, err := ferryCmd(ctx, cfgPath, "seed").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "seed failed: %s", string(output))
			Expect(string(output)).To(ContainSubstring("Created Collection"))
			Expect(string(output)).To(ContainSubstring("Created Monograph"))
			Expect(string(output)).To(ContainSubstring("Record store seeding complete!"))

			var model string
			err = env.pool.QueryRow(ctx,
				"SELECT model FROM records WHERE id = $1", "01J7SEED0000000000W0000002",
			).Scan(&model)
			Expect(err).NotTo(HaveOccurred())
			Expect(model).To(Equal("GenericWork"), "the demo work is stored under its record model")

			var agentType, agentName string
			err = env.pool.QueryRow(ctx,
				"SELECT agent_type, agent_name FROM grants WHERE record_id = $1 AND position = 0",
				"01J7SEED0000000000W0000002",
			).Scan(&agentType, &agentName)
			Expect(err).NotTo(HaveOccurred())
			Expect(agentType).To(Equal("group"))
			Expect(agentName).To(Equal("editors"))
		})

		It("is idempotent across runs", func() {
			output, err := ferryCmd(ctx, cfgPath, "seed").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "first seed failed: %s", string(output))

			output, err = ferryCmd(ctx, cfgPath, "seed").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "second seed failed: %s", string(output))
			Expect(string(output)).To(ContainSubstring("Collection already exists, skipping"))
			Expect(string(output)).To(ContainSubstring("Monograph already exists, skipping"))

			var count int
			err = env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM records").Scan(&count)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(2), "repeat runs must not duplicate rows")
		})
	})

	Describe("verify", func() {
		It("converts every seeded record", func() {
			output, err := ferryCmd(ctx, cfgPath, "migrate", "up").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", string(output))

			output, err = ferryCmd(ctx, cfgPath, "seed").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "seed failed: %s", string(output))

			output, err = ferryCmd(ctx, cfgPath, "verify").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "verify failed: %s", string(output))
			Expect(string(output)).To(ContainSubstring("Collection (AdminCollection): 1 record(s)"))
			Expect(string(output)).To(ContainSubstring("Monograph (GenericWork): 1 record(s)"))
			Expect(string(output)).To(ContainSubstring("Verified 2 record(s) across 2 model(s)"))
		})
	})

	Describe("status", func() {
		It("reports the migrated store as reachable", func() {
			output, err := ferryCmd(ctx, cfgPath, "migrate", "up").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", string(output))

			output, err = ferryCmd(ctx, cfgPath, "status", "--json").CombinedOutput()
			Expect(err).NotTo(HaveOccurred(), "status failed: %s", string(output))
			Expect(string(output)).To(ContainSubstring(`"driver": "postgres"`))
			Expect(string(output)).To(ContainSubstring(`"reachable": true`))
			Expect(string(output)).To(ContainSubstring(`"migration": "2"`))
			Expect(string(output)).To(ContainSubstring(`"resource": "Monograph"`))
			Expect(string(output)).NotTo(ContainSubstring("ferry:ferry@"), "credentials must be redacted")
		})
	})
})
