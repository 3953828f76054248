// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

// Package record contains the legacy record model: the persisted shape of
// repository content as the record system stores it, with row-level access
// grants. Records are the system of record; the normalized resource view is
// rebuilt from them on demand.
package record

import (
	"fmt"
	"slices"
	"time"

	"github.com/ferrybridge/ferry/internal/acl"
)

// Grant is a single persisted access rule attached to a record. AgentType
// and AgentName identify who the rule applies to; AccessToID names the
// record the rule governs access to, which may differ from the record the
// grant is attached to.
type Grant struct {
	ID         string
	AgentType  acl.AgentType
	AgentName  string
	Level      acl.AccessLevel
	AccessToID string
	New        bool
}

// Record is a persisted legacy record: a model-discriminated bag of
// multi-valued attributes plus its access grants. New reports whether the
// record has been persisted yet; stores clear it on save.
type Record struct {
	ID         string
	Model      string
	Attributes map[string][]string
	New        bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Grants     []Grant
}

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the grant's agent and level fields.
func (g *Grant) Validate() error {
	if err := g.AgentType.Validate(); err != nil {
		return &ValidationError{Field: "agent_type", Message: fmt.Sprintf("%q is not a valid agent type", g.AgentType)}
	}
	if g.AgentName == "" {
		return &ValidationError{Field: "agent_name", Message: "cannot be empty"}
	}
	if err := g.Level.Validate(); err != nil {
		return &ValidationError{Field: "level", Message: fmt.Sprintf("%q is not a valid access level", g.Level)}
	}
	return nil
}

// Validate checks that the record is storable: ID and model set, every
// grant well formed.
func (r *Record) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Message: "cannot be empty"}
	}
	if r.Model == "" {
		return &ValidationError{Field: "model", Message: "cannot be empty"}
	}
	for i := range r.Grants {
		if err := r.Grants[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the record. Stores hand out clones so
// callers can never alias persisted state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Attributes != nil {
		clone.Attributes = make(map[string][]string, len(r.Attributes))
		for k, v := range r.Attributes {
			clone.Attributes[k] = slices.Clone(v)
		}
	}
	clone.Grants = slices.Clone(r.Grants)
	return &clone
}

// Attribute returns the values stored under name, or nil when absent.
func (r *Record) Attribute(name string) []string {
	return r.Attributes[name]
}
