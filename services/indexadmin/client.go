// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package indexadmin manages the semantic-search backing index and
// its ingest queues. Every operation requires a TenantAdmin session.
package indexadmin

import (
	"context"
	"encoding/json"
	"iter"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

var tracer = otel.Tracer("aleutian.knowledge.indexadmin")

// ShardInfo is the health summary of one index shard.
type ShardInfo struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	DocCount  int64  `json:"docCount"`
	SizeBytes int64  `json:"sizeBytes"`
}

// NodeInfo is the health summary of one cluster node.
type NodeInfo struct {
	Name  string         `json:"name"`
	Roles []string       `json:"roles,omitempty"`
	Stats map[string]any `json:"stats,omitempty"`
}

// IndexHealth is the cluster and index status report.
type IndexHealth struct {
	ClusterStatus string      `json:"clusterStatus"`
	IndexStatus   string      `json:"indexStatus"`
	Shards        []ShardInfo `json:"shards,omitempty"`
	Nodes         []NodeInfo  `json:"nodes,omitempty"`
}

// QueueInfo is the monitor detail of one ingest queue.
type QueueInfo struct {
	Name    string         `json:"name"`
	Count   int            `json:"count"`
	Empty   bool           `json:"empty"`
	Monitor map[string]any `json:"monitor,omitempty"`
}

// Client talks to the management endpoints of the semantic-search
// service. Safe for concurrent use; document streams are not.
type Client struct {
	tp      *transport.Client
	baseURL string
}

// New binds an index-admin client to the semantic-search service URL.
func New(tp *transport.Client, serviceURL string) *Client {
	return &Client{tp: tp, baseURL: strings.TrimSuffix(serviceURL, "/")}
}

func (c *Client) apiURL(segments ...string) string {
	return c.baseURL + "/api/v1/" + strings.Join(segments, "/") + "/"
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "indexadmin."+op)
	return ctx, traceSpan{span}
}

// ==== Index management ====

// IndexHealth reports cluster status, index status, per-shard stats,
// and per-node info.
func (c *Client) IndexHealth(ctx context.Context) (*IndexHealth, error) {
	ctx, span := c.start(ctx, "IndexHealth")
	defer span.End()

	resp, err := c.tp.Post(ctx, c.apiURL("management", "index", "health"), nil, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &IndexHealth{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.String("kg.cluster_status", out.ClusterStatus))
	return out, nil
}

// RefreshIndex forces recent writes to become visible to search.
func (c *Client) RefreshIndex(ctx context.Context) error {
	ctx, span := c.start(ctx, "RefreshIndex")
	defer span.End()

	if _, err := c.tp.Post(ctx, c.apiURL("management", "index", "refresh"), nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// OptimizeIndex force-merges index segments to reclaim storage. Slow
// on large indexes; the per-call timeout may need raising.
func (c *Client) OptimizeIndex(ctx context.Context) error {
	ctx, span := c.start(ctx, "OptimizeIndex")
	defer span.End()

	if _, err := c.tp.Post(ctx, c.apiURL("management", "index", "optimize"), nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// DeleteDocuments removes the listed documents from the index by id.
func (c *Client) DeleteDocuments(ctx context.Context, documentIDs []string) error {
	ctx, span := c.start(ctx, "DeleteDocuments")
	defer span.End()

	if len(documentIDs) == 0 {
		return apierrors.Validation("at least one document id is required")
	}
	body := map[string][]string{"ids": documentIDs}
	if _, err := c.tp.DeleteBody(ctx, c.apiURL("management", "index", "entries"), body, nil); err != nil {
		return span.fail(err)
	}
	span.ok(attribute.Int("kg.document_count", len(documentIDs)))
	return nil
}

// streamError is the shape of an in-band error line.
type streamError struct {
	Error string `json:"error"`
}

// StreamDocuments streams every indexed document chunk for a locale
// as NDJSON. A line carrying an "error" field terminates the sequence
// with a ServiceError. Single consumer per sequence; breaking out
// closes the stream.
func (c *Client) StreamDocuments(ctx context.Context, locale datatypes.LocaleCode) (iter.Seq2[*datatypes.SemanticDocument, error], error) {
	ctx, span := c.start(ctx, "StreamDocuments")
	defer span.End()

	if !datatypes.IsSupportedLocale(locale) {
		return nil, apierrors.Validation("unsupported locale %q", locale)
	}
	stream, err := c.tp.PostStream(ctx, c.apiURL("management", "index", "stream"),
		map[string]string{"locale": string(locale)}, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok()

	return func(yield func(*datatypes.SemanticDocument, error) bool) {
		defer stream.Close()
		for line, err := range stream.Lines() {
			if err != nil {
				yield(nil, err)
				return
			}
			var inband streamError
			if json.Unmarshal(line, &inband) == nil && inband.Error != "" {
				yield(nil, apierrors.New(apierrors.KindGeneric, inband.Error))
				return
			}
			doc := &datatypes.SemanticDocument{}
			if err := json.Unmarshal(line, doc); err != nil {
				yield(nil, parseErr(err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}, nil
}

// ==== Queue management ====

// QueueNames lists the ingest queue names.
func (c *Client) QueueNames(ctx context.Context) ([]string, error) {
	ctx, span := c.start(ctx, "QueueNames")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.apiURL("queues", "names"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var out []string
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.queue_count", len(out)))
	return out, nil
}

// Queues lists every ingest queue with its monitor info.
func (c *Client) Queues(ctx context.Context) ([]QueueInfo, error) {
	ctx, span := c.start(ctx, "Queues")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.apiURL("queues", "all"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var out []QueueInfo
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.queue_count", len(out)))
	return out, nil
}

// QueueCount returns the total number of queued ingest items.
func (c *Client) QueueCount(ctx context.Context) (int, error) {
	ctx, span := c.start(ctx, "QueueCount")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.apiURL("queues", "count"), nil)
	if err != nil {
		return 0, span.fail(err)
	}
	var wire struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return 0, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.count", wire.Count))
	return wire.Count, nil
}

// QueueEmpty reports whether every ingest queue is drained.
func (c *Client) QueueEmpty(ctx context.Context) (bool, error) {
	ctx, span := c.start(ctx, "QueueEmpty")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.apiURL("queues", "empty"), nil)
	if err != nil {
		return false, span.fail(err)
	}
	var wire struct {
		Empty bool `json:"empty"`
	}
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return false, span.fail(parseErr(err))
	}
	span.ok()
	return wire.Empty, nil
}

// Queue fetches the monitor detail of one queue.
func (c *Client) Queue(ctx context.Context, name string) (*QueueInfo, error) {
	ctx, span := c.start(ctx, "Queue")
	defer span.End()

	if name == "" {
		return nil, apierrors.Validation("queue name must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.apiURL("queues", name), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &QueueInfo{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok()
	return out, nil
}

func parseErr(err error) error {
	return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed management response"), err)
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
