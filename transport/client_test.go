// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/session"
)

// =============================================================================
// Test Setup
// =============================================================================

// mintToken signs a test JWT with the platform claims. Signatures are
// never verified client-side, so any key works.
func mintToken(t *testing.T, user string, ttl time.Duration) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":              time.Now().Add(ttl).Unix(),
		"sub":              user,
		"tenant":           "tenant-test",
		"external-user-id": user,
	}).SignedString([]byte("unit-test"))
	require.NoError(t, err)
	return token
}

// newTestClient builds a fast-failing client with a registered
// session. The session is removed on test cleanup.
func newTestClient(t *testing.T, cfg Config, user string) (*Client, session.Session) {
	t.Helper()
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 2 * time.Millisecond
	}
	c := New(cfg)
	s, err := c.RegisterToken(mintToken(t, user, time.Hour), "")
	require.NoError(t, err)
	t.Cleanup(c.Logout)
	t.Cleanup(c.Close)
	return c, s
}

// =============================================================================
// Request Basics
// =============================================================================

// TestGet_SendsAuthAndUserAgent verifies the default headers and the
// response envelope.
func TestGet_SendsAuthAndUserAgent(t *testing.T) {
	c, s := newTestClient(t, Config{}, "basics-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+s.AccessToken(), r.Header.Get("Authorization"))
		assert.Equal(t, "AleutianKnowledge/"+Version, r.Header.Get("User-Agent"))
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := c.Get(context.Background(), srv.URL+"/thing", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "yes", resp.Header.Get("X-Test"))
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
}

// TestPost_BodyParamsHeaders verifies JSON encoding, query-parameter
// merging, and per-request header overrides.
func TestPost_BodyParamsHeaders(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "post-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "custom", r.Header.Get("X-Custom"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "en_US", r.URL.Query().Get("locale"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "value", body["field"])
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	opt := &RequestOptions{
		Params:  map[string][]string{"limit": {"10"}, "locale": {"en_US"}},
		Headers: http.Header{"X-Custom": {"custom"}},
	}
	resp, err := c.Post(context.Background(), srv.URL+"/thing", map[string]string{"field": "value"}, opt)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

// TestPost_UnserializableBody verifies a bad body fails before any
// request is dispatched.
func TestPost_UnserializableBody(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "badbody-user")

	_, err := c.Post(context.Background(), "http://unused.invalid", func() {}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)
}

// TestPostMultipart verifies the multipart body layout: file part,
// form fields, and the mimeType field.
func TestPostMultipart(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "multipart-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "notes.uim", header.Filename)
		assert.Equal(t, "ink", r.FormValue("kind"))
		assert.Equal(t, "application/vnd.wacom.uim", r.FormValue("mimeType"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	part := FilePart{Field: "file", FileName: "notes.uim", MimeType: "application/vnd.wacom.uim", Data: []byte{1, 2, 3}}
	_, err := c.PostMultipart(context.Background(), srv.URL+"/upload", part, map[string]string{"kind": "ink"}, nil)
	require.NoError(t, err)
}

// =============================================================================
// Retry Behavior
// =============================================================================

// TestRetry_TransientThenSuccess verifies 503 responses are retried
// until the service recovers.
func TestRetry_TransientThenSuccess(t *testing.T) {
	c, _ := newTestClient(t, Config{MaxRetries: 3}, "retry-user")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := c.Get(context.Background(), srv.URL+"/flaky", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

// TestRetry_ExhaustedSurfacesTransient verifies the last transient
// failure surfaces once retries run out.
func TestRetry_ExhaustedSurfacesTransient(t *testing.T) {
	c, _ := newTestClient(t, Config{MaxRetries: 2}, "exhausted-user")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := c.Get(context.Background(), srv.URL+"/down", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrTransient)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, int32(3), calls.Load())
}

// TestRetry_ClientErrorNotRetried verifies a 400 is surfaced on the
// first attempt.
func TestRetry_ClientErrorNotRetried(t *testing.T) {
	c, _ := newTestClient(t, Config{MaxRetries: 3}, "badreq-user")

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad field"}`))
	}))
	defer srv.Close()

	_, err := c.Get(context.Background(), srv.URL+"/bad", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var svcErr *apierrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, apierrors.KindGeneric, svcErr.Kind)
	assert.Equal(t, http.StatusBadRequest, svcErr.StatusCode)
	assert.Contains(t, svcErr.Snippet, "bad field")
}

// TestTimeout_Envelope verifies a deadline maps to a transient
// envelope with status 0.
func TestTimeout_Envelope(t *testing.T) {
	c, _ := newTestClient(t, Config{MaxRetries: 1}, "timeout-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(250 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := c.Get(context.Background(), srv.URL+"/slow", &RequestOptions{Timeout: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrTransient)

	var svcErr *apierrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 0, svcErr.StatusCode)
	assert.Equal(t, "timeout", svcErr.Message)
}

// TestCancel_Envelope verifies caller cancellation is reported as
// canceled, not as a timeout.
func TestCancel_Envelope(t *testing.T) {
	c, _ := newTestClient(t, Config{MaxRetries: 1}, "cancel-user")

	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(250 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Get(ctx, srv.URL+"/slow", nil)
	require.Error(t, err)

	var svcErr *apierrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, 0, svcErr.StatusCode)
	assert.Equal(t, "canceled", svcErr.Message)
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Authentication
// =============================================================================

// TestAuth_NoActiveSession verifies requests fail before dispatch when
// nothing is logged in.
func TestAuth_NoActiveSession(t *testing.T) {
	c := New(Config{})
	t.Cleanup(c.Close)

	_, err := c.Get(context.Background(), "http://unused.invalid", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrAuthExpired)
}

// TestAuth_NoAuthOption verifies NoAuth omits the Authorization
// header even with an active session.
func TestAuth_NoAuthOption(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "noauth-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := c.Get(context.Background(), srv.URL, &RequestOptions{NoAuth: true})
	require.NoError(t, err)
}

// TestAuth_OverwriteToken verifies the override is sent verbatim
// instead of the session token.
func TestAuth_OverwriteToken(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "overwrite-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer management-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := c.Get(context.Background(), srv.URL, &RequestOptions{OverwriteToken: "management-token"})
	require.NoError(t, err)
}

// TestAuth_ForcedRefreshReplayOn401 verifies a 401 triggers exactly
// one refresh and one replay with the new token.
func TestAuth_ForcedRefreshReplayOn401(t *testing.T) {
	oldToken := "" // captured below
	newToken := mintToken(t, "replay-user", 2*time.Hour)

	mux := http.NewServeMux()
	var refreshes, dataCalls atomic.Int32
	mux.HandleFunc("/user/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshes.Add(1)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "refresh-1", body["refreshToken"])
		json.NewEncoder(w).Encode(map[string]string{
			"accessToken": newToken, "refreshToken": "refresh-2",
		})
	})
	mux.HandleFunc("/data", func(w http.ResponseWriter, r *http.Request) {
		dataCalls.Add(1)
		if r.Header.Get("Authorization") == "Bearer "+oldToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{AuthServiceURL: srv.URL, MaxRetries: 1, InitialBackoff: time.Millisecond})
	t.Cleanup(c.Close)
	oldToken = mintToken(t, "replay-user", time.Hour)
	s, err := c.RegisterToken(oldToken, "refresh-1")
	require.NoError(t, err)
	t.Cleanup(c.Logout)

	_, err = c.Get(context.Background(), srv.URL+"/data", nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), refreshes.Load())
	assert.Equal(t, int32(2), dataCalls.Load())
	assert.Equal(t, newToken, s.AccessToken())
	assert.Equal(t, "refresh-2", s.RefreshToken())
}

// TestLogin_RegistersPermanentSession verifies the full login flow:
// credential headers, session registration, and activation.
func TestLogin_RegistersPermanentSession(t *testing.T) {
	accessToken := mintToken(t, "login-user", time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/user/login", r.URL.Path)
		assert.Equal(t, "api-key-1", r.Header.Get("x-tenant-api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "login-user", body["externalUserId"])

		json.NewEncoder(w).Encode(map[string]string{
			"accessToken":    accessToken,
			"refreshToken":   "refresh-1",
			"expirationDate": "2026-01-01T00:00:00Z",
		})
	}))
	defer srv.Close()

	c := New(Config{AuthServiceURL: srv.URL})
	t.Cleanup(c.Close)
	t.Cleanup(c.Logout)

	s, err := c.Login(context.Background(), "api-key-1", "login-user")
	require.NoError(t, err)
	assert.Equal(t, session.KindPermanent, s.Kind())
	assert.Equal(t, s.ID(), c.SessionID())
	assert.True(t, c.Manager().HasSession(s.ID()))

	c.Logout()
	assert.Empty(t, c.SessionID())
	assert.False(t, c.Manager().HasSession(s.ID()))
}

// TestLogin_MissingCredentials verifies the pre-dispatch check.
func TestLogin_MissingCredentials(t *testing.T) {
	c := New(Config{})
	t.Cleanup(c.Close)

	_, err := c.Login(context.Background(), "", "user")
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)

	_, err = c.Login(context.Background(), "key", "")
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)
}

// TestUseSession verifies switching to a registered session and the
// rejection of unknown ids.
func TestUseSession(t *testing.T) {
	c, s := newTestClient(t, Config{}, "switch-user")

	require.NoError(t, c.UseSession(s.ID()))
	assert.Equal(t, s.ID(), c.SessionID())

	err := c.UseSession("no-such-session")
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)
}
