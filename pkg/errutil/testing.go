// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ferry Contributors

package errutil

import (
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// AssertErrorCode asserts that err carries the given failure code. Coded
// failures are oops errors throughout this module; a plain error fails the
// assertion with its dynamic type.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	_, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	assert.Equal(t, code, CodeOf(err))
}

// AssertErrorContext asserts that err is an oops error whose context holds
// value under key.
func AssertErrorContext(t *testing.T, err error, key string, value any) {
	t.Helper()
	oopsErr, ok := oops.AsOops(err)
	require.True(t, ok, "expected oops error, got %T", err)
	got, present := oopsErr.Context()[key]
	require.True(t, present, "error context has no %q key", key)
	assert.Equal(t, value, got)
}
