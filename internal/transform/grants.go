// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package transform

import (
	"github.com/samber/oops"

	"github.com/ferrybridge/ferry/internal/acl"
	"github.com/ferrybridge/ferry/internal/record"
	"github.com/ferrybridge/ferry/internal/resource"
)

// ExpandGrants converts a record's grants into permissions, one per grant,
// preserving order. The grant's agent pair is folded into the encoded
// subject form; level, IDs, and the new-record flag are copied across.
// A record with no grants yields an empty sequence.
func ExpandGrants(rec *record.Record) []resource.Permission {
	if len(rec.Grants) == 0 {
		return nil
	}
	perms := make([]resource.Permission, 0, len(rec.Grants))
	for _, g := range rec.Grants {
		perms = append(perms, resource.Permission{
			ID:       resource.ID(g.ID),
			Agent:    acl.Subject(g.AgentType, g.AgentName),
			Level:    g.Level,
			AccessTo: resource.ID(g.AccessToID),
			New:      g.New,
		})
	}
	return perms
}

// CollapseGrants converts permissions back into grants, one per permission,
// preserving order. The encoded subject is split back into agent type and
// name; fails with MALFORMED_SUBJECT when a subject cannot be decoded.
func CollapseGrants(perms []resource.Permission) ([]record.Grant, error) {
	if len(perms) == 0 {
		return nil, nil
	}
	grants := make([]record.Grant, 0, len(perms))
	for _, p := range perms {
		agentType, name, err := acl.ParseSubject(p.Agent)
		if err != nil {
			return nil, oops.
				Code("MALFORMED_SUBJECT").
				With("permission_id", p.ID.String()).
				With("subject", p.Agent).
				Wrap(err)
		}
		grants = append(grants, record.Grant{
			ID:         p.ID.String(),
			AgentType:  agentType,
			AgentName:  name,
			Level:      p.Level,
			AccessToID: p.AccessTo.String(),
			New:        p.New,
		})
	}
	return grants, nil
}

// DeriveAccessTo returns the first permission in order whose access-to
// target is non-empty. ok is false when no permission qualifies or the
// sequence is empty.
func DeriveAccessTo(perms []resource.Permission) (resource.Permission, bool) {
	for _, p := range perms {
		if !p.AccessTo.IsZero() {
			return p, true
		}
	}
	return resource.Permission{}, false
}
