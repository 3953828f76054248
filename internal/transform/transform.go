// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

// Package transform converts between legacy records and normalized
// resources. Attributes cross the boundary verbatim in both directions;
// grants expand into permissions and collapse back; the resource side gains
// derived persistence fields the record system owns.
//
// Transformers are pure: the same inputs always produce the same outputs,
// and inputs are never mutated. All state lives in the registry and schema
// resolver handed in at construction, both of which are read-only here.
package transform

import (
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/samber/oops"

	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/registry"
	"github.com/ferrybridge/ferry/internal/resource"
)

// ErrUnmappableAttribute indicates an attribute the target record model's
// schema does not accept.
var ErrUnmappableAttribute = errors.New("unmappable attribute")

// Transformer converts records to resources and back.
type Transformer struct {
	registry *registry.Registry
	schemas  SchemaResolver
	strict   bool
}

// TransformerOption configures a Transformer.
type TransformerOption func(*Transformer)

// WithSchemas sets the schema resolver consulted by ToRecord. Without one,
// every record model is open and accepts every attribute.
func WithSchemas(schemas SchemaResolver) TransformerOption {
	return func(t *Transformer) { t.schemas = schemas }
}

// WithStrictSchema makes ToRecord fail with UNMAPPABLE_ATTRIBUTE instead of
// silently dropping attributes the target schema rejects. Only models with
// a registered schema are affected; unknown models stay open.
func WithStrictSchema() TransformerOption {
	return func(t *Transformer) { t.strict = true }
}

// New creates a Transformer over the given model registry.
func New(reg *registry.Registry, opts ...TransformerOption) *Transformer {
	t := &Transformer{registry: reg}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ToResource builds the normalized view of a record. Every attribute is
// copied verbatim, the resource model is resolved through the registry,
// grants are expanded into permissions, and the access-to reference is
// derived from them. Fails with UNREGISTERED_TYPE when the record's model
// has no registered mapping.
func (t *Transformer) ToResource(rec *record.Record) (*resource.Resource, error) {
	start := time.Now()

	resourceModel, err := t.registry.ReverseLookup(rec.Model)
	if err != nil {
		observeConversion(DirectionToResource, start, err)
		return nil, err
	}

	res := &resource.Resource{
		ID:          resource.ID(rec.ID),
		Model:       resourceModel,
		Attributes:  cloneAttributes(rec.Attributes),
		New:         rec.New,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		Permissions: ExpandGrants(rec),
	}
	if target, ok := DeriveAccessTo(res.Permissions); ok {
		res.AccessTo = &target
	}

	observeConversion(DirectionToResource, start, nil)
	return res, nil
}

// ToRecord builds a legacy record of the given model from a resource.
// Attributes are checked against the model's schema: rejected attributes
// fail with UNMAPPABLE_ATTRIBUTE in strict mode and are silently dropped
// otherwise. Derived fields never become attributes; they ride along as
// record metadata. Grants are not populated here, collapse the resource's
// permissions separately.
func (t *Transformer) ToRecord(res *resource.Resource, recordModel string) (*record.Record, error) {
	start := time.Now()

	var attrs map[string][]string
	if res.Attributes != nil {
		names := make([]string, 0, len(res.Attributes))
		for name := range res.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)

		attrs = make(map[string][]string, len(names))
		for _, name := range names {
			if !t.allows(recordModel, name) {
				if t.strict {
					err := oops.
						Code("UNMAPPABLE_ATTRIBUTE").
						With("attribute", name).
						With("record_model", recordModel).
						With("resource_id", res.ID.String()).
						Wrap(ErrUnmappableAttribute)
					observeConversion(DirectionToRecord, start, err)
					return nil, err
				}
				continue
			}
			attrs[name] = slices.Clone(res.Attributes[name])
		}
	}

	rec := &record.Record{
		ID:         res.ID.String(),
		Model:      recordModel,
		Attributes: attrs,
		New:        res.New,
		CreatedAt:  res.CreatedAt,
		UpdatedAt:  res.UpdatedAt,
	}

	observeConversion(DirectionToRecord, start, nil)
	return rec, nil
}

// allows applies the open-model policy over the schema resolver.
func (t *Transformer) allows(recordModel, attribute string) bool {
	if t.schemas == nil {
		return true
	}
	allowed, known := t.schemas.Allows(recordModel, attribute)
	if !known {
		return true
	}
	return allowed
}

func cloneAttributes(attrs map[string][]string) map[string][]string {
	if attrs == nil {
		return nil
	}
	clone := make(map[string][]string, len(attrs))
	for k, v := range attrs {
		clone[k] = slices.Clone(v)
	}
	return clone
}
