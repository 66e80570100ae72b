// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package importer orchestrates bulk entity import: chunked
// submission, job polling, paginated new-URI and error-log retrieval,
// replay of unacknowledged entities, and diff reconciliation against
// what the graph stored.
package importer

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/pkg/logging"
	"github.com/AleutianAI/AleutianKnowledge/services/graph"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

var tracer = otel.Tracer("aleutian.knowledge.importer")

// minPollInterval is the floor on job-status polling cadence.
const minPollInterval = time.Second

// Config tunes the orchestrator.
type Config struct {
	// PollInterval is the job-status cadence. Values below one second
	// are raised to one second.
	PollInterval time.Duration

	// CompareRelations extends the reconciliation diff to outgoing
	// object-property targets.
	CompareRelations bool

	Logger *logging.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{PollInterval: minPollInterval}
}

func (c Config) withDefaults() Config {
	if c.PollInterval < minPollInterval {
		c.PollInterval = minPollInterval
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return c
}

// Client runs bulk imports against the graph service. Safe for
// concurrent use; each Import call polls independently.
type Client struct {
	tp      *transport.Client
	graph   *graph.Client
	baseURL string
	cfg     Config
	log     *logging.Logger
}

// New binds an import client to the graph service URL. The graph
// client is used for entity fetches during reconciliation and for
// replaying entities the bulk job did not acknowledge.
func New(tp *transport.Client, graphClient *graph.Client, serviceURL string, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		tp:      tp,
		graph:   graphClient,
		baseURL: strings.TrimSuffix(serviceURL, "/"),
		cfg:     cfg,
		log:     cfg.Logger.With("component", "importer"),
	}
}

func (c *Client) bulkURL(segments ...string) string {
	parts := append([]string{c.baseURL, "entity", "bulk"}, segments...)
	for i, p := range parts[1:] {
		parts[i+1] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "importer."+op)
	return ctx, traceSpan{span}
}

// ==== Bulk protocol primitives ====

// Submit sends the whole entity list and returns the job id. Every
// entity must carry a source reference id; use EnsureSourceReferences
// to assign missing ones.
func (c *Client) Submit(ctx context.Context, things []*datatypes.ThingObject) (string, error) {
	ctx, span := c.start(ctx, "Submit")
	defer span.End()

	if len(things) == 0 {
		return "", apierrors.Validation("at least one entity is required")
	}
	docs := make([]json.RawMessage, 0, len(things))
	for i, t := range things {
		if t.SourceReferenceID() == "" {
			return "", apierrors.Validation("entity %d has no source reference id", i)
		}
		doc, err := datatypes.EncodeImport(t)
		if err != nil {
			return "", span.fail(err)
		}
		docs = append(docs, doc)
	}
	resp, err := c.tp.Post(ctx, c.bulkURL(), docs, nil)
	if err != nil {
		return "", span.fail(err)
	}
	var wire struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return "", span.fail(parseErr(err))
	}
	if wire.JobID == "" {
		return "", span.fail(apierrors.New(apierrors.KindParse, "bulk submit returned no job id"))
	}
	span.ok(
		attribute.Int("kg.entity_count", len(things)),
		attribute.String("kg.job_id", wire.JobID),
	)
	return wire.JobID, nil
}

// JobStatus fetches a snapshot of the bulk job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*datatypes.JobStatus, error) {
	ctx, span := c.start(ctx, "JobStatus")
	defer span.End()

	if jobID == "" {
		return nil, apierrors.Validation("job id must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.bulkURL(jobID, "status"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &datatypes.JobStatus{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.String("kg.job_state", string(out.Status)))
	return out, nil
}

// NewURIs collects the full source-reference-id to URI mapping of a
// completed job, following the page cursor to the end.
func (c *Client) NewURIs(ctx context.Context, jobID string) (map[string]string, error) {
	ctx, span := c.start(ctx, "NewURIs")
	defer span.End()

	out := map[string]string{}
	pageID := ""
	for {
		page, err := c.newURIPage(ctx, jobID, pageID)
		if err != nil {
			return nil, span.fail(err)
		}
		for _, e := range page.URIs {
			out[e.SourceReferenceID] = e.URI
		}
		if page.PageID == "" || len(page.URIs) == 0 {
			break
		}
		pageID = page.PageID
	}
	span.ok(attribute.Int("kg.uri_count", len(out)))
	return out, nil
}

func (c *Client) newURIPage(ctx context.Context, jobID, pageID string) (*datatypes.NewURIPage, error) {
	opt := &transport.RequestOptions{Params: url.Values{}}
	if pageID != "" {
		opt.Params.Set("pageId", pageID)
	}
	resp, err := c.tp.Get(ctx, c.bulkURL(jobID, "uris"), opt)
	if err != nil {
		return nil, err
	}
	page := &datatypes.NewURIPage{}
	if err := json.Unmarshal(resp.Body, page); err != nil {
		return nil, parseErr(err)
	}
	return page, nil
}

// ErrorLog collects the per-entity failures of a job, following the
// page cursor to the end.
func (c *Client) ErrorLog(ctx context.Context, jobID string) ([]datatypes.ImportErrorEntry, error) {
	ctx, span := c.start(ctx, "ErrorLog")
	defer span.End()

	var out []datatypes.ImportErrorEntry
	pageID := ""
	for {
		opt := &transport.RequestOptions{Params: url.Values{}}
		if pageID != "" {
			opt.Params.Set("pageId", pageID)
		}
		resp, err := c.tp.Get(ctx, c.bulkURL(jobID, "errors"), opt)
		if err != nil {
			return nil, span.fail(err)
		}
		page := &datatypes.ImportErrorPage{}
		if err := json.Unmarshal(resp.Body, page); err != nil {
			return nil, span.fail(parseErr(err))
		}
		out = append(out, page.Errors...)
		if page.PageID == "" || len(page.Errors) == 0 {
			break
		}
		pageID = page.PageID
	}
	span.ok(attribute.Int("kg.error_count", len(out)))
	return out, nil
}

// WaitForJob polls the job until it reaches a terminal state. The
// cadence is rate-limited to the configured interval; total duration
// is unbounded, so callers wanting a deadline wrap the context.
func (c *Client) WaitForJob(ctx context.Context, jobID string) (*datatypes.JobStatus, error) {
	ctx, span := c.start(ctx, "WaitForJob")
	defer span.End()

	limiter := rate.NewLimiter(rate.Every(c.cfg.PollInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, span.fail(apierrors.Wrap(
				apierrors.New(apierrors.KindGeneric, "import polling canceled"), err))
		}
		status, err := c.JobStatus(ctx, jobID)
		if err != nil {
			if apierrors.IsTransient(err) {
				c.log.Warn("job status poll failed, retrying", "job_id", jobID, "error", err)
				continue
			}
			return nil, span.fail(err)
		}
		c.log.Debug("job status",
			"job_id", jobID,
			"state", status.Status,
			"processed", status.ProcessedEntities,
			"failures", status.Failures)
		if status.Status.Terminal() {
			span.ok(attribute.String("kg.job_state", string(status.Status)))
			return status, nil
		}
	}
}

// ==== Orchestration ====

// Result is the outcome of a full Import run.
type Result struct {
	JobID string

	// URIs maps each submitted source reference id to the URI the
	// graph assigned, including replayed entities.
	URIs map[string]string

	// Errors is the job's per-entity failure log.
	Errors []datatypes.ImportErrorEntry

	// Replayed lists the source reference ids that were missing from
	// the job's URI set and re-submitted via single create.
	Replayed []string

	// Differences holds the reconciliation diffs keyed by source
	// reference id. Absent keys reconciled cleanly.
	Differences map[string][]Difference
}

// EnsureSourceReferences assigns a random UUID source reference id to
// every entity that has none. Returns the ids in input order.
func EnsureSourceReferences(things []*datatypes.ThingObject) []string {
	ids := make([]string, len(things))
	for i, t := range things {
		if t.SourceReferenceID() == "" {
			t.SetSourceReferenceID(uuid.NewString())
		}
		ids[i] = t.SourceReferenceID()
	}
	return ids
}

// Import runs the full bulk protocol: submit, poll to completion,
// collect URIs and errors, replay unacknowledged entities via single
// create, then fetch each created entity and reconcile it against the
// submitted version.
func (c *Client) Import(ctx context.Context, things []*datatypes.ThingObject) (*Result, error) {
	ctx, span := c.start(ctx, "Import")
	defer span.End()

	if len(things) == 0 {
		return nil, apierrors.Validation("at least one entity is required")
	}
	ids := EnsureSourceReferences(things)

	jobID, err := c.Submit(ctx, things)
	if err != nil {
		return nil, span.fail(err)
	}
	c.log.Info("bulk import submitted", "job_id", jobID, "entities", len(things))

	status, err := c.WaitForJob(ctx, jobID)
	if err != nil {
		return nil, span.fail(err)
	}
	if status.Status == datatypes.JobFailed {
		errs, logErr := c.ErrorLog(ctx, jobID)
		if logErr != nil {
			c.log.Warn("error log fetch failed for failed job", "job_id", jobID, "error", logErr)
		}
		return &Result{JobID: jobID, Errors: errs},
			span.fail(apierrors.Newf(apierrors.KindGeneric, "bulk import job %s failed", jobID))
	}

	result := &Result{JobID: jobID, Differences: map[string][]Difference{}}
	if result.URIs, err = c.NewURIs(ctx, jobID); err != nil {
		return nil, span.fail(err)
	}
	if result.Errors, err = c.ErrorLog(ctx, jobID); err != nil {
		return nil, span.fail(err)
	}

	// Entities the job never acknowledged are replayed one by one.
	byRef := make(map[string]*datatypes.ThingObject, len(things))
	for i, t := range things {
		byRef[ids[i]] = t
	}
	for _, id := range ids {
		if _, ok := result.URIs[id]; ok {
			continue
		}
		uri, createErr := c.graph.CreateEntity(ctx, byRef[id])
		if createErr != nil {
			return result, span.fail(apierrors.Wrap(
				apierrors.Newf(apierrors.KindGeneric, "replay of entity %s failed", id), createErr))
		}
		result.URIs[id] = uri
		result.Replayed = append(result.Replayed, id)
	}
	if len(result.Replayed) > 0 {
		c.log.Info("replayed unacknowledged entities", "job_id", jobID, "count", len(result.Replayed))
	}

	// Reconcile: fetch each created entity and diff it against what
	// was submitted.
	opts := DiffOptions{CompareRelations: c.cfg.CompareRelations}
	for _, id := range ids {
		fetched, fetchErr := c.graph.Entity(ctx, result.URIs[id])
		if fetchErr != nil {
			return result, span.fail(fetchErr)
		}
		if diffs := DiffThings(byRef[id], fetched, opts); len(diffs) > 0 {
			result.Differences[id] = diffs
		}
	}

	span.ok(
		attribute.Int("kg.entity_count", len(things)),
		attribute.Int("kg.replayed", len(result.Replayed)),
		attribute.Int("kg.diff_count", len(result.Differences)),
	)
	return result, nil
}

func parseErr(err error) error {
	return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed bulk response"), err)
}

type traceSpan struct {
	trace.Span
}

func (s traceSpan) fail(err error) error {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
	return err
}

func (s traceSpan) ok(attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		s.SetAttributes(attrs...)
	}
	s.SetStatus(codes.Ok, "")
}
