// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

// Package bridge composes the registry, transformer, and record store into
// the full record/resource round trip. Reads rebuild the normalized view
// from the stored record; saves run the inverse conversion and then re-read
// so callers always observe store-assigned metadata.
package bridge

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/registry"
	"github.com/ferrybridge/ferry/internal/resource"
	"github.com/ferrybridge/ferry/internal/transform"
)

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Registry    *registry.Registry
	Transformer *transform.Transformer
	Store       record.Store
	Logger      *slog.Logger
}

// Service provides the normalized-resource view over the record store.
type Service struct {
	registry    *registry.Registry
	transformer *transform.Transformer
	store       record.Store
	logger      *slog.Logger
}

// NewService creates a new Service with the given configuration.
// A nil Logger falls back to slog.Default().
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry:    cfg.Registry,
		transformer: cfg.Transformer,
		store:       cfg.Store,
		logger:      logger,
	}
}

// Resource returns the normalized view of one stored record.
func (s *Service) Resource(ctx context.Context, id resource.ID) (*resource.Resource, error) {
	rec, err := s.store.Get(ctx, id.String())
	if err != nil {
		return nil, oops.Wrapf(err, "get record %s", id)
	}
	res, err := s.transformer.ToResource(rec)
	if err != nil {
		return nil, err
	}
	s.logger.DebugContext(ctx, "resource read",
		"resource_id", res.ID.String(),
		"resource_model", res.Model,
		"record_model", rec.Model)
	return res, nil
}

// Save persists a resource through its legacy record form and returns the
// resource rebuilt from the stored record, carrying store-assigned IDs and
// timestamps. A resource without an ID is created under a fresh ULID.
func (s *Service) Save(ctx context.Context, res *resource.Resource) (*resource.Resource, error) {
	recordModel, err := s.registry.Lookup(res.Model)
	if err != nil {
		return nil, err
	}

	saving := *res
	created := saving.ID.IsZero()
	if created {
		saving.ID = resource.NewID()
		saving.New = true
	}

	rec, err := s.transformer.ToRecord(&saving, recordModel)
	if err != nil {
		return nil, err
	}
	rec.Grants, err = transform.CollapseGrants(saving.Permissions)
	if err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, rec); err != nil {
		return nil, oops.Wrapf(err, "save record %s", rec.ID)
	}

	stored, err := s.store.Get(ctx, rec.ID)
	if err != nil {
		return nil, oops.Wrapf(err, "reload record %s", rec.ID)
	}
	saved, err := s.transformer.ToResource(stored)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "resource saved",
		"resource_id", saved.ID.String(),
		"resource_model", saved.Model,
		"record_model", recordModel,
		"created", created,
		"permissions", len(saved.Permissions))
	return saved, nil
}

// Delete removes a resource's record and its grants.
func (s *Service) Delete(ctx context.Context, id resource.ID) error {
	if err := s.store.Delete(ctx, id.String()); err != nil {
		return oops.Wrapf(err, "delete record %s", id)
	}
	s.logger.InfoContext(ctx, "resource deleted", "resource_id", id.String())
	return nil
}

// Resources returns the normalized view of every record of one resource
// model, ordered by ID.
func (s *Service) Resources(ctx context.Context, resourceModel string) ([]*resource.Resource, error) {
	recordModel, err := s.registry.Lookup(resourceModel)
	if err != nil {
		return nil, err
	}

	recs, err := s.store.List(ctx, recordModel)
	if err != nil {
		return nil, oops.Wrapf(err, "list records of model %s", recordModel)
	}

	resources := make([]*resource.Resource, 0, len(recs))
	for _, rec := range recs {
		res, err := s.transformer.ToResource(rec)
		if err != nil {
			return nil, err
		}
		resources = append(resources, res)
	}

	s.logger.DebugContext(ctx, "resources listed",
		"resource_model", resourceModel,
		"record_model", recordModel,
		"count", len(resources))
	return resources, nil
}
