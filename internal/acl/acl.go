// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

// Package acl defines the access-control vocabulary shared by legacy grants
// and normalized permissions: access levels, agent types, and the encoded
// subject convention that folds both agent fields into a single string.
package acl

import "errors"

// AccessLevel is the capability a grant or permission confers.
type AccessLevel string

// Access levels, weakest to strongest.
const (
	LevelDiscover AccessLevel = "discover"
	LevelRead     AccessLevel = "read"
	LevelEdit     AccessLevel = "edit"
	LevelManage   AccessLevel = "manage"
)

// String returns the string representation of the access level.
func (l AccessLevel) String() string {
	return string(l)
}

// ErrInvalidLevel indicates an unrecognized access level value.
var ErrInvalidLevel = errors.New("invalid access level")

// Validate checks that the access level is a recognized value.
func (l AccessLevel) Validate() error {
	switch l {
	case LevelDiscover, LevelRead, LevelEdit, LevelManage:
		return nil
	default:
		return ErrInvalidLevel
	}
}

// ParseLevel converts a raw string into an AccessLevel.
// Returns ErrInvalidLevel for anything outside the closed set.
func ParseLevel(s string) (AccessLevel, error) {
	l := AccessLevel(s)
	if err := l.Validate(); err != nil {
		return "", err
	}
	return l, nil
}

// AgentType identifies whether a grant targets a single person or a group.
type AgentType string

// Agent types.
const (
	AgentPerson AgentType = "person"
	AgentGroup  AgentType = "group"
)

// String returns the string representation of the agent type.
func (t AgentType) String() string {
	return string(t)
}

// ErrInvalidAgentType indicates an unrecognized agent type value.
var ErrInvalidAgentType = errors.New("invalid agent type")

// Validate checks that the agent type is a recognized value.
func (t AgentType) Validate() error {
	switch t {
	case AgentPerson, AgentGroup:
		return nil
	default:
		return ErrInvalidAgentType
	}
}
