// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ontologyaccess is the ontology service client. Classes and
// properties are staged inside a named context and become visible to
// the graph service only after Commit; callers are expected to follow
// a successful Commit with graph.ReloadOntology.
package ontologyaccess

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

var tracer = otel.Tracer("aleutian.knowledge.ontology")

// Client talks to one ontology service instance. Safe for concurrent
// use.
type Client struct {
	tp      *transport.Client
	baseURL string
}

// New binds an ontology client to a service URL.
func New(tp *transport.Client, serviceURL string) *Client {
	return &Client{tp: tp, baseURL: strings.TrimSuffix(serviceURL, "/")}
}

// contextURL builds "{ontology}/context" plus optional path segments.
func (c *Client) contextURL(segments ...string) string {
	parts := append([]string{c.baseURL, "context"}, segments...)
	for i, p := range parts[1:] {
		parts[i+1] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "ontology."+op)
	return ctx, traceSpan{span}
}

// ==== Contexts ====

// Contexts lists all ontology contexts visible to the session's
// tenant.
func (c *Client) Contexts(ctx context.Context) ([]datatypes.OntologyContext, error) {
	ctx, span := c.start(ctx, "Contexts")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.contextURL(), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var out []datatypes.OntologyContext
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.context_count", len(out)))
	return out, nil
}

// Context fetches the metadata of a single context.
func (c *Client) Context(ctx context.Context, name string) (*datatypes.OntologyContext, error) {
	ctx, span := c.start(ctx, "Context")
	defer span.End()

	if name == "" {
		return nil, apierrors.Validation("context name must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.contextURL(name), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &datatypes.OntologyContext{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok()
	return out, nil
}

// createContextRequest is the body of CreateContext.
type createContextRequest struct {
	Name    string `json:"name"`
	BaseURI string `json:"baseUri,omitempty"`
}

// CreateContext creates a new staging context. The base URI is
// optional; the service derives one from the name when absent.
func (c *Client) CreateContext(ctx context.Context, name, baseURI string) (*datatypes.OntologyContext, error) {
	ctx, span := c.start(ctx, "CreateContext")
	defer span.End()

	if name == "" {
		return nil, apierrors.Validation("context name must not be empty")
	}
	resp, err := c.tp.Post(ctx, c.contextURL(), createContextRequest{Name: name, BaseURI: baseURI}, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &datatypes.OntologyContext{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok()
	return out, nil
}

// ==== Concepts ====

// Concepts lists the class definitions of a context, including the
// subclass hierarchy links.
func (c *Client) Concepts(ctx context.Context, contextName string) ([]*datatypes.OntologyClass, error) {
	ctx, span := c.start(ctx, "Concepts")
	defer span.End()

	if contextName == "" {
		return nil, apierrors.Validation("context name must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.contextURL(contextName, "concepts"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, span.fail(parseErr(err))
	}
	out := make([]*datatypes.OntologyClass, 0, len(raw))
	for _, r := range raw {
		cls, err := datatypes.DecodeOntologyClass(r)
		if err != nil {
			return nil, span.fail(err)
		}
		out = append(out, cls)
	}
	span.ok(attribute.Int("kg.concept_count", len(out)))
	return out, nil
}

// Concept fetches one class definition by reference.
func (c *Client) Concept(ctx context.Context, contextName string, ref datatypes.OntologyClassReference) (*datatypes.OntologyClass, error) {
	ctx, span := c.start(ctx, "Concept")
	defer span.End()

	if contextName == "" || ref.IsZero() {
		return nil, apierrors.Validation("context name and class reference are required")
	}
	resp, err := c.tp.Get(ctx, c.contextURL(contextName, "concepts", ref.IRI()), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	cls, err := datatypes.DecodeOntologyClass(resp.Body)
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok()
	return cls, nil
}

// createConceptRequest is the body of CreateConcept.
type createConceptRequest struct {
	IRI        string                  `json:"iri"`
	SubclassOf string                  `json:"subclassOf,omitempty"`
	Labels     []datatypes.Label       `json:"labels,omitempty"`
	Comments   []datatypes.Description `json:"comments,omitempty"`
}

// CreateConcept stages a new class definition in the context. The
// class is not visible to the graph service until Commit.
func (c *Client) CreateConcept(ctx context.Context, contextName string, cls *datatypes.OntologyClass) error {
	ctx, span := c.start(ctx, "CreateConcept")
	defer span.End()

	if contextName == "" {
		return apierrors.Validation("context name must not be empty")
	}
	if cls == nil || cls.Reference.IsZero() {
		return apierrors.Validation("class reference is required")
	}
	req := createConceptRequest{
		IRI:      cls.Reference.IRI(),
		Labels:   cls.Labels,
		Comments: cls.Comments,
	}
	if cls.SubclassOf != nil {
		req.SubclassOf = cls.SubclassOf.IRI()
	}
	if _, err := c.tp.Post(ctx, c.contextURL(contextName, "concepts"), req, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// ==== Properties ====

// Properties lists the property definitions of a context, including
// sub/superproperty links.
func (c *Client) Properties(ctx context.Context, contextName string) ([]*datatypes.OntologyProperty, error) {
	ctx, span := c.start(ctx, "Properties")
	defer span.End()

	if contextName == "" {
		return nil, apierrors.Validation("context name must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.contextURL(contextName, "properties"), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, span.fail(parseErr(err))
	}
	out := make([]*datatypes.OntologyProperty, 0, len(raw))
	for _, r := range raw {
		prop, err := datatypes.DecodeOntologyProperty(r)
		if err != nil {
			return nil, span.fail(err)
		}
		out = append(out, prop)
	}
	span.ok(attribute.Int("kg.property_count", len(out)))
	return out, nil
}

// Property fetches one property definition by reference.
func (c *Client) Property(ctx context.Context, contextName string, ref datatypes.OntologyPropertyReference) (*datatypes.OntologyProperty, error) {
	ctx, span := c.start(ctx, "Property")
	defer span.End()

	if contextName == "" || ref.IsZero() {
		return nil, apierrors.Validation("context name and property reference are required")
	}
	resp, err := c.tp.Get(ctx, c.contextURL(contextName, "properties", ref.IRI()), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	prop, err := datatypes.DecodeOntologyProperty(resp.Body)
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok()
	return prop, nil
}

// createPropertyRequest is the body of the property creation calls.
type createPropertyRequest struct {
	IRI           string                  `json:"iri"`
	Kind          string                  `json:"kind"`
	Domains       []string                `json:"domains,omitempty"`
	Ranges        []string                `json:"ranges,omitempty"`
	Inverse       string                  `json:"inverse,omitempty"`
	SubpropertyOf string                  `json:"subPropertyOf,omitempty"`
	Labels        []datatypes.Label       `json:"labels,omitempty"`
	Comments      []datatypes.Description `json:"comments,omitempty"`
}

func (c *Client) createProperty(ctx context.Context, op, contextName string, prop *datatypes.OntologyProperty, kind datatypes.PropertyKind) error {
	ctx, span := c.start(ctx, op)
	defer span.End()

	if contextName == "" {
		return apierrors.Validation("context name must not be empty")
	}
	if prop == nil || prop.Reference.IsZero() {
		return apierrors.Validation("property reference is required")
	}
	if prop.Kind != "" && prop.Kind != kind {
		return apierrors.Validation("property %s is declared %s, expected %s",
			prop.Reference.IRI(), prop.Kind, kind)
	}
	req := createPropertyRequest{
		IRI:      prop.Reference.IRI(),
		Kind:     string(kind),
		Ranges:   prop.Ranges,
		Labels:   prop.Labels,
		Comments: prop.Comments,
	}
	for _, d := range prop.Domains {
		req.Domains = append(req.Domains, d.IRI())
	}
	if prop.Inverse != nil {
		req.Inverse = prop.Inverse.IRI()
	}
	if prop.SubpropertyOf != nil {
		req.SubpropertyOf = prop.SubpropertyOf.IRI()
	}
	if _, err := c.tp.Post(ctx, c.contextURL(contextName, "properties"), req, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// CreateObjectProperty stages a relation property. Ranges must be
// class IRIs. An inverse reference makes the service maintain the
// reciprocal edge.
func (c *Client) CreateObjectProperty(ctx context.Context, contextName string, prop *datatypes.OntologyProperty) error {
	return c.createProperty(ctx, "CreateObjectProperty", contextName, prop, datatypes.PropertyKindObject)
}

// CreateDataProperty stages a literal property. Ranges must be XSD
// type IRIs.
func (c *Client) CreateDataProperty(ctx context.Context, contextName string, prop *datatypes.OntologyProperty) error {
	return c.createProperty(ctx, "CreateDataProperty", contextName, prop, datatypes.PropertyKindData)
}

// ==== Lifecycle ====

// Commit promotes the staged definitions of the context. The graph
// service keeps serving the previous ontology until it is told to
// reload, so callers should follow a successful Commit with
// graph.ReloadOntology.
func (c *Client) Commit(ctx context.Context, contextName string) error {
	ctx, span := c.start(ctx, "Commit")
	defer span.End()

	if contextName == "" {
		return apierrors.Validation("context name must not be empty")
	}
	if _, err := c.tp.Post(ctx, c.contextURL(contextName, "commit"), nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// RDFExport returns the committed context as an RDF/XML document.
func (c *Client) RDFExport(ctx context.Context, contextName string) (string, error) {
	ctx, span := c.start(ctx, "RDFExport")
	defer span.End()

	if contextName == "" {
		return "", apierrors.Validation("context name must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.contextURL(contextName, "rdf"), nil)
	if err != nil {
		return "", span.fail(err)
	}
	span.ok(attribute.Int("kg.rdf_bytes", len(resp.Body)))
	return string(resp.Body), nil
}

func parseErr(err error) error {
	return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed ontology response"), err)
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
