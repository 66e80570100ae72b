// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSentinelMatching verifies errors.Is matches the kind sentinel
// without the sentinel being in the wrap chain.
func TestSentinelMatching(t *testing.T) {
	cases := []struct {
		kind     Kind
		sentinel error
	}{
		{KindValidation, ErrValidationFailed},
		{KindAuthExpired, ErrAuthExpired},
		{KindForbidden, ErrForbidden},
		{KindNotFound, ErrNotFound},
		{KindConflict, ErrConflict},
		{KindTransient, ErrTransient},
		{KindParse, ErrParse},
	}

	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			err := New(tc.kind, "boom")
			assert.ErrorIs(t, err, tc.sentinel)

			// No cross-matching between kinds.
			for _, other := range cases {
				if other.kind != tc.kind {
					assert.NotErrorIs(t, err, other.sentinel)
				}
			}
		})
	}

	assert.NotErrorIs(t, New(KindGeneric, "boom"), ErrValidationFailed)
}

// TestSentinelMatching_ThroughWrapping verifies matching survives
// fmt.Errorf %w wrapping by callers.
func TestSentinelMatching_ThroughWrapping(t *testing.T) {
	inner := Validation("bad input")
	outer := fmt.Errorf("creating entity: %w", inner)

	assert.ErrorIs(t, outer, ErrValidationFailed)

	var svcErr *ServiceError
	require.ErrorAs(t, outer, &svcErr)
	assert.Equal(t, KindValidation, svcErr.Kind)
}

// TestWrap_ExposesCause verifies Wrap surfaces the underlying error to
// errors.Is.
func TestWrap_ExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(New(KindTransient, "request failed"), cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Same(t, cause, errors.Unwrap(err))
}

// TestErrorMessage verifies the envelope renders method, URL, and
// status when present.
func TestErrorMessage(t *testing.T) {
	withResponse := FromResponse("GET", "https://api.example.com/graph/entity", 404, "not here")
	assert.Equal(t,
		"not_found: GET https://api.example.com/graph/entity returned 404: unexpected status 404",
		withResponse.Error())
	assert.Equal(t, "not here", withResponse.Snippet)

	preDispatch := Validation("uri must not be empty")
	assert.Equal(t, "validation_failed: uri must not be empty", preDispatch.Error())

	noStatus := &ServiceError{Kind: KindTransient, Method: "POST", URL: "https://x", Message: "dial failed"}
	assert.Equal(t, "transient: POST https://x: dial failed", noStatus.Error())
}

// TestRetryable verifies only transient failures are retryable.
func TestRetryable(t *testing.T) {
	assert.True(t, New(KindTransient, "x").Retryable())
	assert.False(t, New(KindValidation, "x").Retryable())
	assert.False(t, New(KindGeneric, "x").Retryable())

	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", New(KindTransient, "x"))))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

// TestKindForStatus verifies the status-to-kind table.
func TestKindForStatus(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{401, KindAuthExpired},
		{403, KindForbidden},
		{404, KindNotFound},
		{409, KindConflict},
		{429, KindTransient},
		{500, KindTransient},
		{503, KindTransient},
		{400, KindGeneric},
		{418, KindGeneric},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, KindForStatus(tc.status), "status %d", tc.status)
	}
}
