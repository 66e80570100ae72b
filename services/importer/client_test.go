// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package importer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/services/graph"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

// =============================================================================
// Test Setup
// =============================================================================

// newTestTransport builds a transport with a registered session so
// requests carry a bearer token.
func newTestTransport(t *testing.T) *transport.Client {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":              time.Now().Add(time.Hour).Unix(),
		"sub":              "import-test-user",
		"tenant":           "tenant-test",
		"external-user-id": "import-test-user",
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

// newTestClient binds an import client and its graph client to the
// same test server.
func newTestClient(t *testing.T, serviceURL string) *Client {
	t.Helper()
	tp := newTestTransport(t)
	return New(tp, graph.New(tp, serviceURL), serviceURL, Config{})
}

// importThing builds a submittable entity with the given source
// reference id.
func importThing(label, sourceRef string) *datatypes.ThingObject {
	thing := datatypes.NewThingObject(datatypes.ThingClass, label, datatypes.EnUS)
	if sourceRef != "" {
		thing.SetSourceReferenceID(sourceRef)
	}
	return thing
}

// =============================================================================
// Bulk Protocol Primitives
// =============================================================================

// TestSubmit verifies the import-dialect payload and the job id
// unwrap.
func TestSubmit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/entity/bulk", r.URL.Path)

		var docs []map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&docs))
		require.Len(t, docs, 2)
		assert.JSONEq(t, `"ref-a"`, string(docs[0]["sourceReferenceId"]))
		assert.JSONEq(t, `"ref-b"`, string(docs[1]["sourceReferenceId"]))

		w.Write([]byte(`{"jobId": "job-1"}`))
	}))
	defer srv.Close()

	jobID, err := newTestClient(t, srv.URL).Submit(context.Background(),
		[]*datatypes.ThingObject{importThing("Ada", "ref-a"), importThing("Babbage", "ref-b")})
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
}

// TestSubmit_Validation verifies the empty-list and missing-reference
// gates.
func TestSubmit_Validation(t *testing.T) {
	cl := newTestClient(t, "http://unused.invalid")

	_, err := cl.Submit(context.Background(), nil)
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)

	_, err = cl.Submit(context.Background(),
		[]*datatypes.ThingObject{importThing("Ada", "ref-a"), importThing("Babbage", "")})
	require.ErrorIs(t, err, apierrors.ErrValidationFailed)
	assert.Contains(t, err.Error(), "entity 1 has no source reference id")
}

// TestSubmit_NoJobID verifies that a job-less acknowledgement is a
// parse error.
func TestSubmit_NoJobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Submit(context.Background(),
		[]*datatypes.ThingObject{importThing("Ada", "ref-a")})
	require.ErrorIs(t, err, apierrors.ErrParse)
	assert.Contains(t, err.Error(), "bulk submit returned no job id")
}

// TestJobStatus verifies the status decode and the empty-id gate.
func TestJobStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity/bulk/job-1/status", r.URL.Path)
		w.Write([]byte(`{
			"id": "job-1",
			"status": "RUNNING",
			"processedEntities": 240,
			"failures": 3,
			"startedAt": "2026-08-28T08:00:00Z"
		}`))
	}))
	defer srv.Close()

	cl := newTestClient(t, srv.URL)
	status, err := cl.JobStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobRunning, status.Status)
	assert.Equal(t, 240, status.ProcessedEntities)
	assert.Equal(t, 3, status.Failures)
	assert.False(t, status.Status.Terminal())

	_, err = cl.JobStatus(context.Background(), "")
	assert.ErrorIs(t, err, apierrors.ErrValidationFailed)
}

// TestNewURIs verifies that the page cursor is followed to the end.
func TestNewURIs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity/bulk/job-1/uris", r.URL.Path)
		switch r.URL.Query().Get("pageId") {
		case "":
			w.Write([]byte(`{
				"uris": [{"sourceReferenceId": "ref-a", "uri": "uri:ada"}],
				"pageId": "cursor-2"
			}`))
		case "cursor-2":
			w.Write([]byte(`{
				"uris": [{"sourceReferenceId": "ref-b", "uri": "uri:babbage"}]
			}`))
		default:
			t.Errorf("unexpected pageId %q", r.URL.Query().Get("pageId"))
		}
	}))
	defer srv.Close()

	uris, err := newTestClient(t, srv.URL).NewURIs(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"ref-a": "uri:ada",
		"ref-b": "uri:babbage",
	}, uris)
}

// TestErrorLog verifies the paginated error-log collection.
func TestErrorLog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/entity/bulk/job-1/errors", r.URL.Path)
		if r.URL.Query().Get("pageId") == "" {
			w.Write([]byte(`{
				"errors": [{"reason": "invalid literal", "severity": "ERROR", "position": 4}],
				"pageId": "cursor-2"
			}`))
			return
		}
		w.Write([]byte(`{
			"errors": [{"reason": "duplicate source reference", "severity": "WARNING", "position": 9}]
		}`))
	}))
	defer srv.Close()

	errs, err := newTestClient(t, srv.URL).ErrorLog(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "invalid literal", errs[0].Reason)
	assert.Equal(t, 9, errs[1].Position)
}

// =============================================================================
// Job Polling
// =============================================================================

// TestWaitForJob verifies polling through a non-terminal state and a
// transient failure to completion.
func TestWaitForJob(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch polls.Add(1) {
		case 1:
			w.Write([]byte(`{"id": "job-1", "status": "RUNNING"}`))
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Write([]byte(`{"id": "job-1", "status": "COMPLETED", "processedEntities": 2}`))
		}
	}))
	defer srv.Close()

	status, err := newTestClient(t, srv.URL).WaitForJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.JobCompleted, status.Status)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

// TestWaitForJob_Canceled verifies that a canceled caller stops
// polling with a wrapped cancellation error.
func TestWaitForJob_Canceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "job-1", "status": "PENDING"}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := newTestClient(t, srv.URL).WaitForJob(ctx, "job-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "import polling canceled")
}

// =============================================================================
// Orchestration
// =============================================================================

// TestEnsureSourceReferences verifies that missing ids are assigned
// and existing ones kept.
func TestEnsureSourceReferences(t *testing.T) {
	things := []*datatypes.ThingObject{
		importThing("Ada", "ref-a"),
		importThing("Babbage", ""),
	}

	ids := EnsureSourceReferences(things)
	require.Len(t, ids, 2)
	assert.Equal(t, "ref-a", ids[0])
	assert.Equal(t, things[1].SourceReferenceID(), ids[1])
	_, err := uuid.Parse(ids[1])
	assert.NoError(t, err)

	// Idempotent: a second pass changes nothing.
	assert.Equal(t, ids, EnsureSourceReferences(things))
}

// TestImport runs the full protocol: submit, poll, URI collection,
// replay of an unacknowledged entity, and reconciliation.
func TestImport(t *testing.T) {
	var replayed atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/entity/bulk":
			w.Write([]byte(`{"jobId": "job-1"}`))
		case "/entity/bulk/job-1/status":
			w.Write([]byte(`{"id": "job-1", "status": "COMPLETED", "processedEntities": 2}`))
		case "/entity/bulk/job-1/uris":
			// ref-b is never acknowledged; it must be replayed.
			w.Write([]byte(`{"uris": [{"sourceReferenceId": "ref-a", "uri": "uri:ada"}]}`))
		case "/entity/bulk/job-1/errors":
			w.Write([]byte(`{"errors": []}`))
		case "/entity":
			replayed.Add(1)
			assert.Equal(t, http.MethodPost, r.Method)
			w.Write([]byte(`{"uri": "uri:babbage"}`))
		case "/entity/uri:ada":
			w.Write([]byte(`{
				"uri": "uri:ada",
				"type": "wacom:core#Thing",
				"labels": [{"value": "Ada", "locale": "en_US", "isMain": true}],
				"literals": {"wacom:core#sourceReferenceId": [{"value": "ref-a"}]}
			}`))
		case "/entity/uri:babbage":
			// The stored label drifted; reconciliation must notice.
			w.Write([]byte(`{
				"uri": "uri:babbage",
				"type": "wacom:core#Thing",
				"labels": [{"value": "Charles Babbage", "locale": "en_US", "isMain": true}],
				"literals": {"wacom:core#sourceReferenceId": [{"value": "ref-b"}]}
			}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	things := []*datatypes.ThingObject{
		importThing("Ada", "ref-a"),
		importThing("Babbage", "ref-b"),
	}
	result, err := newTestClient(t, srv.URL).Import(context.Background(), things)
	require.NoError(t, err)

	assert.Equal(t, "job-1", result.JobID)
	assert.Equal(t, map[string]string{
		"ref-a": "uri:ada",
		"ref-b": "uri:babbage",
	}, result.URIs)
	assert.Equal(t, []string{"ref-b"}, result.Replayed)
	assert.Equal(t, int32(1), replayed.Load())
	assert.Empty(t, result.Errors)

	// ref-a reconciled cleanly; ref-b came back with a drifted label.
	assert.NotContains(t, result.Differences, "ref-a")
	require.Contains(t, result.Differences, "ref-b")
	types := diffTypes(result.Differences["ref-b"])
	assert.Contains(t, types, DiffLabelContent)
}

// TestImport_JobFailed verifies that a failed job surfaces the error
// log alongside the failure.
func TestImport_JobFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/entity/bulk":
			w.Write([]byte(`{"jobId": "job-9"}`))
		case "/entity/bulk/job-9/status":
			w.Write([]byte(`{"id": "job-9", "status": "FAILED", "failures": 2}`))
		case "/entity/bulk/job-9/errors":
			w.Write([]byte(`{"errors": [{"reason": "ontology class not found", "severity": "ERROR"}]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	result, err := newTestClient(t, srv.URL).Import(context.Background(),
		[]*datatypes.ThingObject{importThing("Ada", "ref-a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bulk import job job-9 failed")
	require.NotNil(t, result)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ontology class not found", result.Errors[0].Reason)
}
