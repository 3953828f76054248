// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package acl

import (
	"errors"
	"strings"

	"github.com/samber/oops"
)

// GroupPrefix marks an encoded subject as a group. Person subjects carry no
// prefix: a permission's agent field is the bare person name.
const GroupPrefix = "group/"

// ErrMalformedSubject indicates a subject string that cannot be decoded into
// an agent type and name.
var ErrMalformedSubject = errors.New("malformed subject")

// GroupSubject returns the encoded subject for a group agent.
// Panics if name is empty, since an empty subject cannot be decoded back.
func GroupSubject(name string) string {
	if name == "" {
		panic("acl.GroupSubject: empty group name would produce an undecodable subject")
	}
	return GroupPrefix + name
}

// Subject returns the encoded subject for an agent of the given type.
// Group agents are prefixed, person agents pass through unchanged.
// Panics if name is empty.
func Subject(agentType AgentType, name string) string {
	if agentType == AgentGroup {
		return GroupSubject(name)
	}
	if name == "" {
		panic("acl.Subject: empty agent name would produce an undecodable subject")
	}
	return name
}

// ParseSubject decodes an encoded subject into its agent type and name.
// Returns a MALFORMED_SUBJECT error for an empty subject or a group prefix
// with nothing after it. Everything without the group prefix is a person.
func ParseSubject(subject string) (AgentType, string, error) {
	if subject == "" {
		return "", "", oops.
			Code("MALFORMED_SUBJECT").
			With("subject", subject).
			Wrap(ErrMalformedSubject)
	}

	if strings.HasPrefix(subject, GroupPrefix) {
		name := subject[len(GroupPrefix):]
		if name == "" {
			return "", "", oops.
				Code("MALFORMED_SUBJECT").
				With("subject", subject).
				Wrap(ErrMalformedSubject)
		}
		return AgentGroup, name, nil
	}

	return AgentPerson, subject, nil
}
