// Copyright 2026 Ferry Contributors

// Package registry maintains the bidirectional mapping between normalized
// resource model names and legacy record model names. One registry instance
// is seeded from configuration at startup and shared read-mostly afterwards.
package registry

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// ErrInvalidModelName indicates an empty model name on either side of a mapping.
var ErrInvalidModelName = errors.New("model name cannot be empty")

// ErrUnregisteredType indicates no mapping exists for the requested model.
var ErrUnregisteredType = errors.New("unregistered type")

// ErrDuplicateMapping indicates a strict-mode registration would overwrite
// an existing mapping.
var ErrDuplicateMapping = errors.New("mapping already registered")

// Mapping is one registered resource-model/record-model pair.
type Mapping struct {
	ResourceModel string
	RecordModel   string
}

// Registry is the bidirectional model-name table.
// It is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu         sync.RWMutex
	toRecord   map[string]string
	toResource map[string]string
	strict     bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithStrictOverwrite makes Register fail with DUPLICATE_MAPPING instead of
// silently replacing an existing mapping for either side.
func WithStrictOverwrite() Option {
	return func(r *Registry) { r.strict = true }
}

// New creates an empty registry. The default overwrite policy is
// last-write-wins; WithStrictOverwrite switches to fail-on-overwrite.
func New(opts ...Option) *Registry {
	r := &Registry{
		toRecord:   make(map[string]string),
		toResource: make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records the pair in both directions.
//
// Under the default policy a re-registration of either side replaces the
// previous mapping, and the stale counterpart entries are dropped so the
// table stays bijective. Under strict overwrite, registering a pair that
// collides with an existing mapping on either side fails with
// DUPLICATE_MAPPING and leaves the table unchanged; re-registering the
// identical pair is a no-op.
func (r *Registry) Register(resourceModel, recordModel string) error {
	if strings.TrimSpace(resourceModel) == "" || strings.TrimSpace(recordModel) == "" {
		return ErrInvalidModelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.strict {
		if existing, ok := r.toRecord[resourceModel]; ok {
			if existing == recordModel {
				return nil
			}
			return oops.
				Code("DUPLICATE_MAPPING").
				With("resource_model", resourceModel).
				With("record_model", recordModel).
				With("existing_record_model", existing).
				Wrap(ErrDuplicateMapping)
		}
		if existing, ok := r.toResource[recordModel]; ok {
			return oops.
				Code("DUPLICATE_MAPPING").
				With("resource_model", resourceModel).
				With("record_model", recordModel).
				With("existing_resource_model", existing).
				Wrap(ErrDuplicateMapping)
		}
	}

	// Last write wins: drop stale counterpart entries so lookups in both
	// directions always agree.
	if old, ok := r.toRecord[resourceModel]; ok {
		delete(r.toResource, old)
	}
	if old, ok := r.toResource[recordModel]; ok {
		delete(r.toRecord, old)
	}
	r.toRecord[resourceModel] = recordModel
	r.toResource[recordModel] = resourceModel
	return nil
}

// MustRegister records the pair, panicking on error.
// This is intended for package initialization only.
func (r *Registry) MustRegister(resourceModel, recordModel string) {
	if err := r.Register(resourceModel, recordModel); err != nil {
		panic(err)
	}
}

// Lookup returns the legacy record model mapped to a normalized resource
// model. Fails with UNREGISTERED_TYPE when no mapping exists; the registry
// is left unchanged.
func (r *Registry) Lookup(resourceModel string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recordModel, ok := r.toRecord[resourceModel]
	if !ok {
		return "", oops.
			Code("UNREGISTERED_TYPE").
			With("resource_model", resourceModel).
			Wrap(ErrUnregisteredType)
	}
	return recordModel, nil
}

// ReverseLookup returns the normalized resource model mapped to a legacy
// record model. Fails with UNREGISTERED_TYPE when no mapping exists.
func (r *Registry) ReverseLookup(recordModel string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resourceModel, ok := r.toResource[recordModel]
	if !ok {
		return "", oops.
			Code("UNREGISTERED_TYPE").
			With("record_model", recordModel).
			Wrap(ErrUnregisteredType)
	}
	return resourceModel, nil
}

// Mappings returns a snapshot of all registered pairs, ordered by resource
// model for stable diagnostic output.
func (r *Registry) Mappings() []Mapping {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mappings := make([]Mapping, 0, len(r.toRecord))
	for resourceModel, recordModel := range r.toRecord {
		mappings = append(mappings, Mapping{ResourceModel: resourceModel, RecordModel: recordModel})
	}
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].ResourceModel < mappings[j].ResourceModel })
	return mappings
}
