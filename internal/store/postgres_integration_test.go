// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ferrybridge/ferry/internal/acl"
	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/store"
)

// setupPostgresStore starts a PostgreSQL container, migrates the schema, and
// connects a record store to it.
func setupPostgresStore() (*store.PostgresStore, func(), error) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ferry_test"),
		postgres.WithUsername("ferry"),
		postgres.WithPassword("ferry"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := store.Connect(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	recordStore := store.NewPostgresStore(pool)
	cleanup := func() {
		_ = recordStore.Close()
		_ = container.Terminate(ctx)
	}

	return recordStore, cleanup, nil
}

func sampleRecord(id string) *record.Record {
	return &record.Record{
		ID:    id,
		Model: "GenericWork",
		Attributes: map[string][]string{
			"title":   {"Clouds Over the Estuary"},
			"creator": {"asantos"},
		},
		Grants: []record.Grant{
			{AgentType: acl.AgentGroup, AgentName: "editors", Level: acl.LevelEdit, AccessToID: id},
			{AgentType: acl.AgentPerson, AgentName: "asantos", Level: acl.LevelRead},
		},
	}
}

var _ = Describe("PostgresStore", func() {
	var (
		recordStore *store.PostgresStore
		cleanup     func()
		ctx         context.Context
	)

	BeforeEach(func() {
		var err error
		recordStore, cleanup, err = setupPostgresStore()
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("Save and Get", func() {
		It("round-trips a record with its grants", func() {
			Expect(recordStore.Save(ctx, sampleRecord("W1"))).To(Succeed())

			got, err := recordStore.Get(ctx, "W1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Model).To(Equal("GenericWork"))
			Expect(got.Attributes).To(Equal(map[string][]string{
				"title":   {"Clouds Over the Estuary"},
				"creator": {"asantos"},
			}))
			Expect(got.CreatedAt).NotTo(BeZero())
			Expect(got.UpdatedAt).NotTo(BeZero())
			Expect(got.New).To(BeFalse())

			Expect(got.Grants).To(HaveLen(2))
			Expect(got.Grants[0].ID).NotTo(BeEmpty())
			Expect(got.Grants[0].AgentName).To(Equal("editors"))
			Expect(got.Grants[0].AccessToID).To(Equal("W1"))
			Expect(got.Grants[1].AgentName).To(Equal("asantos"))
			Expect(got.Grants[1].AccessToID).To(BeEmpty())
		})

		It("keeps nil attributes nil", func() {
			Expect(recordStore.Save(ctx, &record.Record{ID: "W2", Model: "GenericWork"})).To(Succeed())

			got, err := recordStore.Get(ctx, "W2")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Attributes).To(BeNil())
			Expect(got.Grants).To(BeEmpty())
		})

		It("preserves CreatedAt and replaces grants on update", func() {
			Expect(recordStore.Save(ctx, sampleRecord("W3"))).To(Succeed())
			first, err := recordStore.Get(ctx, "W3")
			Expect(err).NotTo(HaveOccurred())

			updated := first.Clone()
			updated.Attributes["title"] = []string{"Second Edition"}
			updated.Grants = []record.Grant{
				{AgentType: acl.AgentGroup, AgentName: "curators", Level: acl.LevelManage},
			}
			Expect(recordStore.Save(ctx, updated)).To(Succeed())

			got, err := recordStore.Get(ctx, "W3")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.CreatedAt).To(BeTemporally("==", first.CreatedAt))
			Expect(got.UpdatedAt).To(BeTemporally(">=", first.UpdatedAt))
			Expect(got.Attributes["title"]).To(Equal([]string{"Second Edition"}))
			Expect(got.Grants).To(HaveLen(1))
			Expect(got.Grants[0].AgentName).To(Equal("curators"))
		})

		It("returns ErrNotFound for a missing record", func() {
			_, err := recordStore.Get(ctx, "missing")
			Expect(err).To(MatchError(record.ErrNotFound))
		})
	})

	Describe("Delete", func() {
		It("removes the record and its grants", func() {
			Expect(recordStore.Save(ctx, sampleRecord("W4"))).To(Succeed())
			Expect(recordStore.Delete(ctx, "W4")).To(Succeed())

			_, err := recordStore.Get(ctx, "W4")
			Expect(err).To(MatchError(record.ErrNotFound))
		})

		It("returns ErrNotFound for a missing record", func() {
			Expect(recordStore.Delete(ctx, "missing")).To(MatchError(record.ErrNotFound))
		})

		It("frees grant IDs for reuse", func() {
			doomed := sampleRecord("W5")
			doomed.Grants = []record.Grant{
				{ID: "G-reused", AgentType: acl.AgentPerson, AgentName: "asantos", Level: acl.LevelRead},
			}
			Expect(recordStore.Save(ctx, doomed)).To(Succeed())
			Expect(recordStore.Delete(ctx, "W5")).To(Succeed())

			fresh := sampleRecord("W6")
			fresh.Grants = doomed.Grants
			Expect(recordStore.Save(ctx, fresh)).To(Succeed())
		})
	})

	Describe("List", func() {
		It("filters by model and orders by ID", func() {
			Expect(recordStore.Save(ctx, sampleRecord("W2"))).To(Succeed())
			Expect(recordStore.Save(ctx, sampleRecord("W1"))).To(Succeed())
			Expect(recordStore.Save(ctx, &record.Record{ID: "C1", Model: "AdminCollection"})).To(Succeed())

			works, err := recordStore.List(ctx, "GenericWork")
			Expect(err).NotTo(HaveOccurred())
			Expect(works).To(HaveLen(2))
			Expect(works[0].ID).To(Equal("W1"))
			Expect(works[1].ID).To(Equal("W2"))
			Expect(works[0].Grants).To(HaveLen(2))

			none, err := recordStore.List(ctx, "Dataset")
			Expect(err).NotTo(HaveOccurred())
			Expect(none).To(BeEmpty())
		})
	})

	Describe("Conflicts", func() {
		It("rejects a grant ID already used by another record", func() {
			first := sampleRecord("W7")
			first.Grants = []record.Grant{
				{ID: "G-shared", AgentType: acl.AgentPerson, AgentName: "asantos", Level: acl.LevelRead},
			}
			Expect(recordStore.Save(ctx, first)).To(Succeed())

			second := sampleRecord("W8")
			second.Grants = first.Grants
			Expect(recordStore.Save(ctx, second)).To(MatchError(record.ErrConflict))

			_, err := recordStore.Get(ctx, "W8")
			Expect(err).To(MatchError(record.ErrNotFound), "failed save should roll back entirely")
		})
	})

	Describe("Ping", func() {
		It("succeeds against a live database", func() {
			Expect(recordStore.Ping(ctx)).To(Succeed())
		})
	})
})
