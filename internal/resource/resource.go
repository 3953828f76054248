// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

// Package resource contains the normalized resource model: an attribute bag
// discriminated by model name, carrying expanded permissions. Resources are
// assembled fresh from legacy records on every read and never cached; the
// record side stays the system of record.
package resource

import (
	"time"

	"github.com/ferrybridge/ferry/internal/acl"
)

// Permission is a single expanded access rule on a resource. Agent is the
// encoded subject ("group/<name>" for groups, bare name for people).
type Permission struct {
	ID       ID
	Agent    string
	Level    acl.AccessLevel
	AccessTo ID
	New      bool
}

// Resource is the normalized view of a legacy record. Attributes are
// multi-valued and copied verbatim from the record; New, CreatedAt and
// UpdatedAt are derived from the record's persistence metadata.
//
// AccessTo, when non-nil, points at the permission the resource's access
// target was derived from and always equals one of the entries in
// Permissions.
type Resource struct {
	ID          ID
	Model       string
	Attributes  map[string][]string
	New         bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Permissions []Permission
	AccessTo    *Permission
}

// Attribute returns the values stored under name, or nil when absent.
func (r *Resource) Attribute(name string) []string {
	return r.Attributes[name]
}

// First returns the first value stored under name, or "" when absent.
// Convenient for attributes that are single-valued by convention.
func (r *Resource) First(name string) string {
	vals := r.Attributes[name]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}
