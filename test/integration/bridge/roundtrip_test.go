// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

//go:build integration

package bridge_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/ferrybridge/ferry/internal/acl"
	"github.com/ferrybridge/ferry/internal/bridge"
	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/registry"
	"github.com/ferrybridge/ferry/internal/resource"
	"github.com/ferrybridge/ferry/internal/store"
	"github.com/ferrybridge/ferry/internal/transform"
	"github.com/ferrybridge/ferry/pkg/errutil"
)

// newBridgeService assembles a bridge over the suite's database with the
// demo mappings and an optional attribute schema.
func newBridgeService(ctx context.Context, strict bool) (*bridge.Service, *store.PostgresStore) {
	reg := registry.New()
	Expect(reg.Register("Monograph", "GenericWork")).To(Succeed())
	Expect(reg.Register("Collection", "AdminCollection")).To(Succeed())

	schemas, err := transform.NewStaticSchemas(map[string][]string{
		"GenericWork": {"title", "creator", "member_of", "dc_*"},
	})
	Expect(err).NotTo(HaveOccurred())

	opts := []transform.TransformerOption{transform.WithSchemas(schemas)}
	if strict {
		opts = append(opts, transform.WithStrictSchema())
	}

	pool, err := store.Connect(ctx, env.connStr)
	Expect(err).NotTo(HaveOccurred())
	recordStore := store.NewPostgresStore(pool)

	svc := bridge.NewService(bridge.ServiceConfig{
		Registry:    reg,
		Transformer: transform.New(reg, opts...),
		Store:       recordStore,
	})
	return svc, recordStore
}

var _ = Describe("Bridge round trip", func() {
	var (
		ctx         context.Context
		svc         *bridge.Service
		recordStore *store.PostgresStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
		svc, recordStore = newBridgeService(ctx, false)
	})

	AfterEach(func() {
		Expect(recordStore.Close()).To(Succeed())
	})

	Describe("Save", func() {
		It("stores the resource under its legacy record model", func() {
			saved, err := svc.Save(ctx, &resource.Resource{
				Model: "Monograph",
				New:   true,
				Attributes: map[string][]string{
					"title":   {"Tidal Charts of the Inner Sound"},
					"creator": {"jmorrow"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ID.IsZero()).To(BeFalse(), "a fresh ULID should be minted")
			Expect(saved.Model).To(Equal("Monograph"))
			Expect(saved.New).To(BeFalse(), "the stored row is no longer new")
			Expect(saved.CreatedAt).NotTo(BeZero())

			var model string
			err = env.pool.QueryRow(ctx,
				"SELECT model FROM records WHERE id = $1", saved.ID.String(),
			).Scan(&model)
			Expect(err).NotTo(HaveOccurred())
			Expect(model).To(Equal("GenericWork"), "the row carries the record model, not the resource model")
		})

		It("collapses permissions into grant rows and restores them on read", func() {
			saved, err := svc.Save(ctx, &resource.Resource{
				Model: "Monograph",
				New:   true,
				Attributes: map[string][]string{
					"title": {"Ferry Timetables 1947-1963"},
				},
				Permissions: []resource.Permission{
					{Agent: "group/editors", Level: acl.LevelEdit, New: true},
					{Agent: "asantos", Level: acl.LevelRead, New: true},
				},
			})
			Expect(err).NotTo(HaveOccurred())

			var groupRows int
			err = env.pool.QueryRow(ctx,
				"SELECT COUNT(*) FROM grants WHERE record_id = $1 AND agent_type = 'group' AND agent_name = 'editors'",
				saved.ID.String(),
			).Scan(&groupRows)
			Expect(err).NotTo(HaveOccurred())
			Expect(groupRows).To(Equal(1), "the group/ prefix must collapse into agent_type")

			got, err := svc.Resource(ctx, saved.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Permissions).To(HaveLen(2))
			Expect(got.Permissions[0].Agent).To(Equal("group/editors"))
			Expect(got.Permissions[0].ID).NotTo(BeZero(), "stored grants carry minted IDs")
			Expect(got.Permissions[1].Agent).To(Equal("asantos"))
		})

		It("derives the access target from the first permission with one", func() {
			target := resource.NewID()
			saved, err := svc.Save(ctx, &resource.Resource{
				Model: "Monograph",
				New:   true,
				Attributes: map[string][]string{
					"title": {"Harbor Light Maintenance Logs"},
				},
				Permissions: []resource.Permission{
					{Agent: "group/viewers", Level: acl.LevelRead, New: true},
					{Agent: "group/editors", Level: acl.LevelEdit, AccessTo: target, New: true},
					{Agent: "curator", Level: acl.LevelManage, AccessTo: resource.NewID(), New: true},
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(saved.AccessTo).NotTo(BeNil())
			Expect(saved.AccessTo.Agent).To(Equal("group/editors"))
			Expect(saved.AccessTo.AccessTo).To(Equal(target))
		})

		It("rejects resources of unregistered models", func() {
			_, err := svc.Save(ctx, &resource.Resource{Model: "Dataset", New: true})
			Expect(err).To(HaveOccurred())
			Expect(errutil.CodeOf(err)).To(Equal("UNREGISTERED_TYPE"))
		})

		It("rejects malformed permission subjects", func() {
			_, err := svc.Save(ctx, &resource.Resource{
				Model: "Monograph",
				New:   true,
				Permissions: []resource.Permission{
					{Agent: "group/", Level: acl.LevelRead, New: true},
				},
			})
			Expect(err).To(HaveOccurred())
			Expect(errutil.CodeOf(err)).To(Equal("MALFORMED_SUBJECT"))
		})

		It("round-trips attributes byte for byte", func() {
			attrs := map[string][]string{
				"title":     {"Notes on Brackish Water", "Second Title"},
				"creator":   {"Santos, Alejandra", "Morrow, J."},
				"dc_rights": {"CC-BY-4.0"},
			}
			saved, err := svc.Save(ctx, &resource.Resource{
				Model:      "Monograph",
				New:        true,
				Attributes: attrs,
			})
			Expect(err).NotTo(HaveOccurred())

			got, err := svc.Resource(ctx, saved.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Attributes).To(Equal(attrs))
		})

		It("updates in place without losing CreatedAt", func() {
			first, err := svc.Save(ctx, &resource.Resource{
				Model:      "Collection",
				New:        true,
				Attributes: map[string][]string{"title": {"Estuary Photographs"}},
			})
			Expect(err).NotTo(HaveOccurred())

			update := *first
			update.Attributes = map[string][]string{"title": {"Estuary Photographs, Annotated"}}
			second, err := svc.Save(ctx, &update)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.ID).To(Equal(first.ID))
			Expect(second.CreatedAt).To(BeTemporally("==", first.CreatedAt))
			Expect(second.First("title")).To(Equal("Estuary Photographs, Annotated"))
		})
	})

	Describe("Strict attribute schemas", func() {
		It("fails the save on attributes outside the record schema", func() {
			strictSvc, strictStore := newBridgeService(ctx, true)
			defer func() { _ = strictStore.Close() }()

			_, err := strictSvc.Save(ctx, &resource.Resource{
				Model: "Monograph",
				New:   true,
				Attributes: map[string][]string{
					"title":    {"A Legitimate Title"},
					"agitprop": {"not in any schema"},
				},
			})
			Expect(err).To(HaveOccurred())
			Expect(errutil.CodeOf(err)).To(Equal("UNMAPPABLE_ATTRIBUTE"))
		})

		It("silently drops the same attributes when lenient", func() {
			saved, err := svc.Save(ctx, &resource.Resource{
				Model: "Monograph",
				New:   true,
				Attributes: map[string][]string{
					"title":    {"A Legitimate Title"},
					"agitprop": {"not in any schema"},
				},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.Attribute("agitprop")).To(BeNil())
			Expect(saved.First("title")).To(Equal("A Legitimate Title"))
		})
	})

	Describe("Resources", func() {
		It("lists only the requested model, in ID order", func() {
			for _, title := range []string{"Vol. 2", "Vol. 1"} {
				_, err := svc.Save(ctx, &resource.Resource{
					Model:      "Monograph",
					New:        true,
					Attributes: map[string][]string{"title": {title}},
				})
				Expect(err).NotTo(HaveOccurred())
			}
			_, err := svc.Save(ctx, &resource.Resource{
				Model:      "Collection",
				New:        true,
				Attributes: map[string][]string{"title": {"The Collection"}},
			})
			Expect(err).NotTo(HaveOccurred())

			works, err := svc.Resources(ctx, "Monograph")
			Expect(err).NotTo(HaveOccurred())
			Expect(works).To(HaveLen(2))
			Expect(works[0].ID.String() < works[1].ID.String()).To(BeTrue())
			for _, w := range works {
				Expect(w.Model).To(Equal("Monograph"))
			}
		})
	})

	Describe("Delete", func() {
		It("removes the record and cascades to its grants", func() {
			saved, err := svc.Save(ctx, &resource.Resource{
				Model: "Monograph",
				New:   true,
				Permissions: []resource.Permission{
					{Agent: "group/editors", Level: acl.LevelEdit, New: true},
				},
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(svc.Delete(ctx, saved.ID)).To(Succeed())

			_, err = svc.Resource(ctx, saved.ID)
			Expect(err).To(MatchError(record.ErrNotFound))

			var grantRows int
			err = env.pool.QueryRow(ctx,
				"SELECT COUNT(*) FROM grants WHERE record_id = $1", saved.ID.String(),
			).Scan(&grantRows)
			Expect(err).NotTo(HaveOccurred())
			Expect(grantRows).To(BeZero())
		})
	})
})
