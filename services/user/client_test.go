// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package user

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

// =============================================================================
// Test Setup
// =============================================================================

// newTestTransport builds a transport with a registered tenant-admin
// session.
func newTestTransport(t *testing.T) *transport.Client {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":              time.Now().Add(time.Hour).Unix(),
		"sub":              "user-test-admin",
		"tenant":           "tenant-test",
		"external-user-id": "user-test-admin",
		"roles":            []string{"TenantAdmin"},
	}).SignedString([]byte("unit-test"))
	require.NoError(t, err)

	tp := transport.New(transport.Config{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
	})
	_, err = tp.RegisterToken(token, "")
	require.NoError(t, err)
	t.Cleanup(tp.Logout)
	t.Cleanup(tp.Close)
	return tp
}

// =============================================================================
// Shadow Users
// =============================================================================

// TestCreateUser verifies the request body and the decoded user.
func TestCreateUser(t *testing.T) {
	tp := newTestTransport(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/user", r.URL.Path)

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `"alice@example.com"`, string(body["externalUserId"]))
		assert.JSONEq(t, `["User"]`, string(body["roles"]))
		assert.JSONEq(t, `{"department": "research"}`, string(body["meta"]))

		w.Write([]byte(`{
			"id": "internal-42",
			"externalUserId": "alice@example.com",
			"roles": ["User"],
			"meta": {"department": "research"}
		}`))
	}))
	defer srv.Close()

	got, err := New(tp, srv.URL).CreateUser(context.Background(), "alice@example.com",
		[]datatypes.UserRole{datatypes.RoleUser}, map[string]string{"department": "research"})
	require.NoError(t, err)
	assert.Equal(t, "internal-42", got.ID)
	assert.Equal(t, "alice@example.com", got.ExternalUserID)
	assert.Equal(t, []datatypes.UserRole{datatypes.RoleUser}, got.Roles)
}

// TestCreateUser_EmptyID verifies the validation gate.
func TestCreateUser_EmptyID(t *testing.T) {
	tp := newTestTransport(t)

	_, err := New(tp, "http://unused.invalid").CreateUser(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)
}

// TestUpdateUserMeta verifies that the external user id travels as a
// query parameter and the metadata as a wrapped body.
func TestUpdateUserMeta(t *testing.T) {
	tp := newTestTransport(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "alice@example.com", r.URL.Query().Get("externalUserId"))

		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"department": "design"}, body["meta"])

		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := New(tp, srv.URL).UpdateUserMeta(context.Background(), "alice@example.com",
		map[string]string{"department": "design"})
	require.NoError(t, err)
}

// TestDeleteUser verifies the query parameter and the empty-id gate.
func TestDeleteUser(t *testing.T) {
	tp := newTestTransport(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "alice@example.com", r.URL.Query().Get("externalUserId"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cl := New(tp, srv.URL)
	require.NoError(t, cl.DeleteUser(context.Background(), "alice@example.com"))

	err := cl.DeleteUser(context.Background(), "")
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)
}

// TestUsers verifies the listing decode.
func TestUsers(t *testing.T) {
	tp := newTestTransport(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user", r.URL.Path)
		w.Write([]byte(`[
			{"id": "internal-1", "externalUserId": "alice@example.com", "roles": ["TenantAdmin"]},
			{"id": "internal-2", "externalUserId": "bob@example.com"}
		]`))
	}))
	defer srv.Close()

	users, err := New(tp, srv.URL).Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, []datatypes.UserRole{datatypes.RoleTenantAdmin}, users[0].Roles)
	assert.Equal(t, "bob@example.com", users[1].ExternalUserID)
}

// TestUserInternalID verifies the id unwrap.
func TestUserInternalID(t *testing.T) {
	tp := newTestTransport(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/internal-id", r.URL.Path)
		w.Write([]byte(`{"id": "internal-42"}`))
	}))
	defer srv.Close()

	id, err := New(tp, srv.URL).UserInternalID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "internal-42", id)
}

// TestUsers_Malformed verifies that an undecodable listing surfaces
// as a parse error.
func TestUsers_Malformed(t *testing.T) {
	tp := newTestTransport(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not a list`))
	}))
	defer srv.Close()

	_, err := New(tp, srv.URL).Users(context.Background())
	assert.ErrorIs(t, err, apierrors.ErrParse)
}
