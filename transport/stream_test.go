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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// TestPostStream_Lines verifies each non-empty NDJSON line is yielded
// once, with blank lines skipped.
func TestPostStream_Lines(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "stream-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "en_US", body["locale"])

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.Write([]byte(`{"id":"doc-1"}` + "\n\n" + `{"id":"doc-2"}` + "\n" + `{"id":"doc-3"}` + "\n"))
	}))
	defer srv.Close()

	stream, err := c.PostStream(context.Background(), srv.URL+"/stream", map[string]string{"locale": "en_US"}, nil)
	require.NoError(t, err)

	var ids []string
	for line, err := range stream.Lines() {
		require.NoError(t, err)
		var doc struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(line, &doc))
		ids = append(ids, doc.ID)
	}
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, ids)

	// Close after exhaustion is a no-op.
	assert.NoError(t, stream.Close())
}

// TestPostStream_EarlyBreak verifies a consumer can stop mid-stream
// and the stream still closes cleanly.
func TestPostStream_EarlyBreak(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "break-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			w.Write([]byte(`{"id":"doc"}` + "\n"))
		}
	}))
	defer srv.Close()

	stream, err := c.PostStream(context.Background(), srv.URL+"/stream", nil, nil)
	require.NoError(t, err)

	count := 0
	for _, err := range stream.Lines() {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
	assert.NoError(t, stream.Close())
}

// TestPostStream_ErrorStatus verifies a non-success response becomes
// a ServiceError instead of a stream.
func TestPostStream_ErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, Config{}, "streamerr-user")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("index unavailable"))
	}))
	defer srv.Close()

	_, err := c.PostStream(context.Background(), srv.URL+"/stream", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrTransient)

	var svcErr *apierrors.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Contains(t, svcErr.Snippet, "index unavailable")
}

// TestPostStream_RequiresSession verifies the auth gate applies to
// streams too.
func TestPostStream_RequiresSession(t *testing.T) {
	c := New(Config{})
	t.Cleanup(c.Close)

	_, err := c.PostStream(context.Background(), "http://unused.invalid", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrAuthExpired)
}
