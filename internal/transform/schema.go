// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package transform

import (
	"fmt"

	"github.com/gobwas/glob"
)

// SchemaResolver reports which attributes a legacy record model accepts.
type SchemaResolver interface {
	// Allows reports whether the record model accepts the attribute.
	// known is false when no schema is registered for the model; the
	// transformer treats such models as open.
	Allows(recordModel, attribute string) (allowed, known bool)
}

// StaticSchemas is a SchemaResolver compiled once from configuration.
// Attribute entries are glob patterns, so a schema can admit families of
// attributes (for example "dc_*") without listing every name.
type StaticSchemas struct {
	models map[string][]glob.Glob
}

// NewStaticSchemas compiles the per-model attribute patterns.
// Returns an error for any pattern that does not compile.
func NewStaticSchemas(models map[string][]string) (*StaticSchemas, error) {
	compiled := make(map[string][]glob.Glob, len(models))
	for model, patterns := range models {
		globs := make([]glob.Glob, 0, len(patterns))
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid attribute pattern %q for model %q: %w", pattern, model, err)
			}
			globs = append(globs, g)
		}
		compiled[model] = globs
	}
	return &StaticSchemas{models: compiled}, nil
}

// Allows matches the attribute against the model's compiled patterns.
// A model registered with an empty pattern list accepts nothing.
func (s *StaticSchemas) Allows(recordModel, attribute string) (allowed, known bool) {
	globs, ok := s.models[recordModel]
	if !ok {
		return false, false
	}
	for _, g := range globs {
		if g.Match(attribute) {
			return true, true
		}
	}
	return false, true
}

// Compile-time interface check.
var _ SchemaResolver = (*StaticSchemas)(nil)
