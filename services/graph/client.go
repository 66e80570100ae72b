// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph is the knowledge-graph service client: entity CRUD,
// search, listing, named-entity linking, activation, and index-target
// management.
//
// All methods accept a context for cancellation and tracing and
// return either a typed value or a *apierrors.ServiceError.
package graph

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

// tracer is the OpenTelemetry tracer for graph operations.
var tracer = otel.Tracer("aleutian.knowledge.graph")

// Client talks to one knowledge-graph service instance. Safe for
// concurrent use; listing iterators are not.
type Client struct {
	tp      *transport.Client
	baseURL string
}

// New binds a graph client to a service URL.
func New(tp *transport.Client, serviceURL string) *Client {
	return &Client{tp: tp, baseURL: strings.TrimSuffix(serviceURL, "/")}
}

// entityURL builds "{graph}/entity" plus optional path segments.
func (c *Client) entityURL(segments ...string) string {
	parts := append([]string{c.baseURL, "entity"}, segments...)
	for i, p := range parts[1:] {
		parts[i+1] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// start opens a span for a graph operation.
func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "graph."+op)
	return ctx, traceSpan{span}
}

// CreateEntity creates the entity and returns its assigned URI. A
// conflict on (sourceSystem, sourceReferenceId) is resolved by the
// backend returning the pre-existing URI; the client treats that as
// success.
func (c *Client) CreateEntity(ctx context.Context, thing *datatypes.ThingObject) (string, error) {
	ctx, span := c.start(ctx, "CreateEntity")
	defer span.End()

	if thing == nil {
		return "", apierrors.Validation("entity must not be nil")
	}
	if thing.ConceptType.IsZero() {
		return "", apierrors.Validation("entity has no concept type")
	}
	payload, err := datatypes.EncodeRuntime(thing)
	if err != nil {
		return "", span.fail(err)
	}
	resp, err := c.tp.Post(ctx, c.entityURL(), json.RawMessage(payload), nil)
	if err != nil {
		return "", span.fail(err)
	}
	var created struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(resp.Body, &created); err != nil {
		return "", span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed create response"), err))
	}
	thing.URI = created.URI
	if thing.Status == datatypes.StatusUnknown {
		thing.Status = datatypes.StatusCreated
	}
	span.ok(attribute.String("kg.uri", created.URI))
	return created.URI, nil
}

// CreateEntities bulk-creates the list and returns it with URIs
// assigned in input order.
func (c *Client) CreateEntities(ctx context.Context, things []*datatypes.ThingObject) ([]*datatypes.ThingObject, error) {
	ctx, span := c.start(ctx, "CreateEntities")
	defer span.End()

	batch := make([]json.RawMessage, 0, len(things))
	for _, t := range things {
		encoded, err := datatypes.EncodeRuntime(t)
		if err != nil {
			return nil, span.fail(err)
		}
		batch = append(batch, encoded)
	}
	resp, err := c.tp.Post(ctx, c.entityURL(), batch, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed bulk create response"), err))
	}
	created, err := decodeEntities(raw)
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok(attribute.Int("kg.entity_count", len(created)))
	return created, nil
}

// Entity fetches the full entity by URI.
func (c *Client) Entity(ctx context.Context, uri string) (*datatypes.ThingObject, error) {
	ctx, span := c.start(ctx, "Entity")
	defer span.End()

	if uri == "" {
		return nil, apierrors.Validation("entity URI must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.entityURL(uri), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	thing, err := datatypes.DecodeRuntime(resp.Body)
	if err != nil {
		return nil, span.fail(err)
	}
	thing.Status = datatypes.StatusSynced
	span.ok(attribute.String("kg.uri", uri))
	return thing, nil
}

// UpdateEntity replaces the entity's server state with the client
// payload.
func (c *Client) UpdateEntity(ctx context.Context, thing *datatypes.ThingObject) error {
	ctx, span := c.start(ctx, "UpdateEntity")
	defer span.End()

	if thing == nil || thing.URI == "" {
		return apierrors.Validation("entity must have a URI to be updated")
	}
	payload, err := datatypes.EncodeRuntime(thing)
	if err != nil {
		return span.fail(err)
	}
	if _, err := c.tp.Patch(ctx, c.entityURL(thing.URI), json.RawMessage(payload), nil); err != nil {
		return span.fail(err)
	}
	thing.Status = datatypes.StatusSynced
	span.ok(attribute.String("kg.uri", thing.URI))
	return nil
}

// DeleteEntity deletes one entity. With force, dependent relations
// are removed as well.
func (c *Client) DeleteEntity(ctx context.Context, uri string, force bool) error {
	return c.DeleteEntities(ctx, []string{uri}, force)
}

// DeleteEntities deletes the listed entities.
func (c *Client) DeleteEntities(ctx context.Context, uris []string, force bool) error {
	ctx, span := c.start(ctx, "DeleteEntities")
	defer span.End()

	if len(uris) == 0 {
		return apierrors.Validation("at least one URI is required")
	}
	params := url.Values{}
	params.Set("force", strconv.FormatBool(force))
	for _, uri := range uris {
		params.Add("uri", uri)
	}
	if _, err := c.tp.Delete(ctx, c.entityURL(), &transport.RequestOptions{Params: params}); err != nil {
		return span.fail(err)
	}
	span.ok(attribute.Int("kg.entity_count", len(uris)))
	return nil
}

// Literals fetches only the data properties of an entity.
func (c *Client) Literals(ctx context.Context, uri string) (datatypes.DataPropertyMap, error) {
	ctx, span := c.start(ctx, "Literals")
	defer span.End()

	if uri == "" {
		return nil, apierrors.Validation("entity URI must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.entityURL(uri, "literals"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	partial, err := datatypes.DecodeRuntime(wrapPartial("literals", resp.Body, uri))
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok()
	return partial.DataProperties, nil
}

// Labels fetches only the labels (mains and aliases) of an entity.
func (c *Client) Labels(ctx context.Context, uri string) ([]datatypes.Label, error) {
	ctx, span := c.start(ctx, "Labels")
	defer span.End()

	if uri == "" {
		return nil, apierrors.Validation("entity URI must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.entityURL(uri, "labels"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var labels []datatypes.Label
	if err := json.Unmarshal(resp.Body, &labels); err != nil {
		return nil, span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed labels response"), err))
	}
	span.ok()
	return labels, nil
}

// Relations fetches the object properties of an entity as a map keyed
// by property reference.
func (c *Client) Relations(ctx context.Context, uri string) (datatypes.ObjectPropertyMap, error) {
	ctx, span := c.start(ctx, "Relations")
	defer span.End()

	if uri == "" {
		return nil, apierrors.Validation("entity URI must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.entityURL(uri, "relations"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	partial, err := datatypes.DecodeRuntime(wrapPartial("relations", resp.Body, uri))
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok()
	return partial.ObjectProperties, nil
}

// SetEntityImage uploads image bytes for the entity.
func (c *Client) SetEntityImage(ctx context.Context, uri string, data []byte, fileName, mimeType string) error {
	ctx, span := c.start(ctx, "SetEntityImage")
	defer span.End()

	if uri == "" || len(data) == 0 {
		return apierrors.Validation("entity URI and image bytes are required")
	}
	part := transport.FilePart{Field: "file", FileName: fileName, MimeType: mimeType, Data: data}
	if _, err := c.tp.PostMultipart(ctx, c.entityURL(uri, "image"), part, nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok(attribute.String("kg.uri", uri))
	return nil
}

// SetEntityImageURL instructs the backend to fetch the image itself.
func (c *Client) SetEntityImageURL(ctx context.Context, uri, imageURL, mimeType string) error {
	ctx, span := c.start(ctx, "SetEntityImageURL")
	defer span.End()

	if uri == "" || imageURL == "" {
		return apierrors.Validation("entity URI and image URL are required")
	}
	body := map[string]string{"url": imageURL, "mimeType": mimeType}
	if _, err := c.tp.Post(ctx, c.entityURL(uri, "image-url"), body, nil); err != nil {
		return span.fail(err)
	}
	span.ok(attribute.String("kg.uri", uri))
	return nil
}

// ReloadOntology instructs the graph service to reload the current
// ontology context. Call it after a successful ontology commit.
func (c *Client) ReloadOntology(ctx context.Context) error {
	ctx, span := c.start(ctx, "ReloadOntology")
	defer span.End()

	if _, err := c.tp.Post(ctx, c.baseURL+"/ontology/update", nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// wrapPartial lifts a partial-entity response (literals-only or
// relations-only body) into a decodable entity document.
func wrapPartial(key string, body []byte, uri string) []byte {
	doc := map[string]json.RawMessage{
		key:    body,
		"uri":  mustJSON(uri),
		"type": mustJSON(datatypes.ThingClass.IRI()),
	}
	out, _ := json.Marshal(doc)
	return out
}

// mustJSON marshals a primitive that cannot fail.
func mustJSON(v any) json.RawMessage {
	out, _ := json.Marshal(v)
	return out
}

// traceSpan bundles the span helpers used across this package.
type traceSpan struct {
	trace.Span
}

// fail records the error on the span and passes it through.
func (s traceSpan) fail(err error) error {
	s.RecordError(err)
	s.SetStatus(codes.Error, err.Error())
	return err
}

// ok marks the span successful, attaching any attributes.
func (s traceSpan) ok(attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		s.SetAttributes(attrs...)
	}
	s.SetStatus(codes.Ok, "")
}
