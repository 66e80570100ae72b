// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package semanticsearch is the vector-search service client:
// ranked document and label search, document/label listings, and the
// count endpoints.
package semanticsearch

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

var tracer = otel.Tracer("aleutian.knowledge.semanticsearch")

// Client talks to one semantic-search service instance. Safe for
// concurrent use.
type Client struct {
	tp      *transport.Client
	baseURL string
}

// New binds a semantic-search client to a service URL.
func New(tp *transport.Client, serviceURL string) *Client {
	return &Client{tp: tp, baseURL: strings.TrimSuffix(serviceURL, "/")}
}

// apiURL builds "{vector}/api/v1/..." with the trailing slash the
// service insists on.
func (c *Client) apiURL(segments ...string) string {
	return c.baseURL + "/api/v1/" + strings.Join(segments, "/") + "/"
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "semanticsearch."+op)
	return ctx, traceSpan{span}
}

// ==== Ranked search ====

// SearchDocuments runs a ranked semantic search over document chunks.
// Results arrive best first with scores in [0, 1].
func (c *Client) SearchDocuments(ctx context.Context, req datatypes.DocumentSearchRequest) ([]datatypes.DocumentSearchResult, error) {
	ctx, span := c.start(ctx, "SearchDocuments")
	defer span.End()

	if err := datatypes.ValidateStruct(req); err != nil {
		return nil, err
	}
	resp, err := c.tp.Post(ctx, c.apiURL("documents", "search"), req, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var wire struct {
		Results []datatypes.DocumentSearchResult `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.result_count", len(wire.Results)))
	return wire.Results, nil
}

// SearchLabels runs a ranked fuzzy match over entity labels.
func (c *Client) SearchLabels(ctx context.Context, req datatypes.LabelSearchRequest) ([]datatypes.LabelMatch, error) {
	ctx, span := c.start(ctx, "SearchLabels")
	defer span.End()

	if err := datatypes.ValidateStruct(req); err != nil {
		return nil, err
	}
	resp, err := c.tp.Post(ctx, c.apiURL("labels", "match"), req, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var wire struct {
		Results []datatypes.LabelMatch `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.result_count", len(wire.Results)))
	return wire.Results, nil
}

// ==== Listings ====

// ListingOptions narrows document and label listings.
type ListingOptions struct {
	Locale      datatypes.LocaleCode
	ConceptType string
	PageID      string
	Limit       int
}

func (o *ListingOptions) params() url.Values {
	params := url.Values{}
	if o == nil {
		return params
	}
	if o.Locale != "" {
		params.Set("locale", string(o.Locale))
	}
	if o.ConceptType != "" {
		params.Set("conceptType", o.ConceptType)
	}
	if o.PageID != "" {
		params.Set("pageId", o.PageID)
	}
	if o.Limit > 0 {
		params.Set("limit", strconv.Itoa(o.Limit))
	}
	return params
}

// DocumentPage is one page of the document listing.
type DocumentPage struct {
	Documents  []datatypes.SemanticDocument `json:"documents"`
	NextPageID string                       `json:"nextPageId"`
	Total      int                          `json:"total"`
}

// Documents lists indexed document chunks, newest first.
func (c *Client) Documents(ctx context.Context, opt *ListingOptions) (*DocumentPage, error) {
	ctx, span := c.start(ctx, "Documents")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.apiURL("documents"), &transport.RequestOptions{Params: opt.params()})
	if err != nil {
		return nil, span.fail(err)
	}
	page := &DocumentPage{}
	if err := json.Unmarshal(resp.Body, page); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.page_size", len(page.Documents)))
	return page, nil
}

// LabelPage is one page of the label listing.
type LabelPage struct {
	Labels     []datatypes.LabelMatch `json:"labels"`
	NextPageID string                 `json:"nextPageId"`
	Total      int                    `json:"total"`
}

// Labels lists indexed entity labels.
func (c *Client) Labels(ctx context.Context, opt *ListingOptions) (*LabelPage, error) {
	ctx, span := c.start(ctx, "Labels")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.apiURL("labels"), &transport.RequestOptions{Params: opt.params()})
	if err != nil {
		return nil, span.fail(err)
	}
	page := &LabelPage{}
	if err := json.Unmarshal(resp.Body, page); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.page_size", len(page.Labels)))
	return page, nil
}

// ==== Counts ====

// countFilterRequest is the body of the filtered count endpoints.
type countFilterRequest struct {
	Locale     datatypes.LocaleCode `json:"locale"`
	Filters    map[string]any       `json:"filters"`
	FilterMode datatypes.FilterMode `json:"filterMode,omitempty"`
}

func (c *Client) count(ctx context.Context, op, kind string, locale datatypes.LocaleCode, conceptType string) (int, error) {
	ctx, span := c.start(ctx, op)
	defer span.End()

	if !datatypes.IsSupportedLocale(locale) {
		return 0, apierrors.Validation("unsupported locale %q", locale)
	}
	params := url.Values{"locale": {string(locale)}}
	if conceptType != "" {
		params.Set("conceptType", conceptType)
	}
	resp, err := c.tp.Get(ctx, c.apiURL(kind, "count"), &transport.RequestOptions{Params: params})
	if err != nil {
		return 0, span.fail(err)
	}
	n, err := decodeCount(resp.Body)
	if err != nil {
		return 0, span.fail(err)
	}
	span.ok(attribute.Int("kg.count", n))
	return n, nil
}

func (c *Client) countFilter(ctx context.Context, op, kind string, locale datatypes.LocaleCode, filters map[string]any, mode datatypes.FilterMode) (int, error) {
	ctx, span := c.start(ctx, op)
	defer span.End()

	if !datatypes.IsSupportedLocale(locale) {
		return 0, apierrors.Validation("unsupported locale %q", locale)
	}
	if len(filters) == 0 {
		return 0, apierrors.Validation("at least one filter predicate is required")
	}
	req := countFilterRequest{Locale: locale, Filters: filters, FilterMode: mode}
	resp, err := c.tp.Post(ctx, c.apiURL(kind, "count", "filter"), req, nil)
	if err != nil {
		return 0, span.fail(err)
	}
	n, err := decodeCount(resp.Body)
	if err != nil {
		return 0, span.fail(err)
	}
	span.ok(attribute.Int("kg.count", n))
	return n, nil
}

// CountDocuments counts indexed document chunks for a locale,
// optionally narrowed to one concept type.
func (c *Client) CountDocuments(ctx context.Context, locale datatypes.LocaleCode, conceptType string) (int, error) {
	return c.count(ctx, "CountDocuments", "documents", locale, conceptType)
}

// CountDocumentsFilter counts document chunks matching a metadata
// predicate. Mode defaults to AND when empty.
func (c *Client) CountDocumentsFilter(ctx context.Context, locale datatypes.LocaleCode, filters map[string]any, mode datatypes.FilterMode) (int, error) {
	return c.countFilter(ctx, "CountDocumentsFilter", "documents", locale, filters, mode)
}

// CountLabels counts indexed labels for a locale, optionally narrowed
// to one concept type.
func (c *Client) CountLabels(ctx context.Context, locale datatypes.LocaleCode, conceptType string) (int, error) {
	return c.count(ctx, "CountLabels", "labels", locale, conceptType)
}

// CountLabelsFilter counts labels matching a metadata predicate.
func (c *Client) CountLabelsFilter(ctx context.Context, locale datatypes.LocaleCode, filters map[string]any, mode datatypes.FilterMode) (int, error) {
	return c.countFilter(ctx, "CountLabelsFilter", "labels", locale, filters, mode)
}

func decodeCount(body []byte) (int, error) {
	var wire struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return 0, parseErr(err)
	}
	return wire.Count, nil
}

func parseErr(err error) error {
	return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed search response"), err)
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
