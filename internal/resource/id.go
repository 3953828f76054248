// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package resource

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID identifies a resource. Fresh IDs are ULIDs; IDs carried over from
// legacy records keep whatever form the record system minted.
type ID string

// String returns the string representation of the ID.
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is empty.
func (id ID) IsZero() bool {
	return id == ""
}

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewID generates a new ULID-backed resource ID.
func NewID() ID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ID(ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String())
}

// ParseID validates that s is a well-formed ULID and returns it as an ID.
func ParseID(s string) (ID, error) {
	if _, err := ulid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid resource ID %q: %w", s, err)
	}
	return ID(s), nil
}
