// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tenant manages tenants. Every operation authenticates with
// the tenant-management token passed at construction rather than a
// user session; the token is sent verbatim and never refreshed.
package tenant

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

var tracer = otel.Tracer("aleutian.knowledge.tenant")

// Client talks to the tenant endpoints of the graph service.
type Client struct {
	tp              *transport.Client
	baseURL         string
	managementToken string
}

// New binds a tenant client to the graph service URL. The management
// token is the platform-level secret, distinct from any tenant API
// key.
func New(tp *transport.Client, serviceURL, managementToken string) *Client {
	return &Client{
		tp:              tp,
		baseURL:         strings.TrimSuffix(serviceURL, "/"),
		managementToken: managementToken,
	}
}

func (c *Client) tenantURL(segments ...string) string {
	parts := append([]string{c.baseURL, "tenant"}, segments...)
	for i, p := range parts[1:] {
		parts[i+1] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// opts returns request options carrying the management token.
func (c *Client) opts() *transport.RequestOptions {
	return &transport.RequestOptions{OverwriteToken: c.managementToken}
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "tenant."+op)
	return ctx, traceSpan{span}
}

// createTenantRequest is the body of CreateTenant and UpdateTenant.
type createTenantRequest struct {
	Name                           string   `json:"name,omitempty"`
	OntologyName                   string   `json:"ontologyName,omitempty"`
	VectorSearchDataProperties     []string `json:"vectorSearchDataProperties,omitempty"`
	VectorSearchDocumentProperties []string `json:"vectorSearchDocumentProperties,omitempty"`
}

// CreateTenant creates a tenant. The returned tenant carries the API
// key exactly once; it cannot be retrieved again.
func (c *Client) CreateTenant(ctx context.Context, name string) (*datatypes.Tenant, error) {
	ctx, span := c.start(ctx, "CreateTenant")
	defer span.End()

	if c.managementToken == "" {
		return nil, apierrors.Validation("tenant management token is not configured")
	}
	if name == "" {
		return nil, apierrors.Validation("tenant name must not be empty")
	}
	resp, err := c.tp.Post(ctx, c.tenantURL(), createTenantRequest{Name: name}, c.opts())
	if err != nil {
		return nil, span.fail(err)
	}
	out := &datatypes.Tenant{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.String("kg.tenant_id", out.ID))
	return out, nil
}

// Tenants lists all tenants of the platform.
func (c *Client) Tenants(ctx context.Context) ([]datatypes.Tenant, error) {
	ctx, span := c.start(ctx, "Tenants")
	defer span.End()

	if c.managementToken == "" {
		return nil, apierrors.Validation("tenant management token is not configured")
	}
	resp, err := c.tp.Get(ctx, c.tenantURL(), c.opts())
	if err != nil {
		return nil, span.fail(err)
	}
	var out []datatypes.Tenant
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.tenant_count", len(out)))
	return out, nil
}

// UpdateTenant changes tenant settings. Zero fields are left
// untouched. Changing the vector-search property lists does not
// reindex existing entities.
func (c *Client) UpdateTenant(ctx context.Context, tenantID string, update datatypes.Tenant) error {
	ctx, span := c.start(ctx, "UpdateTenant")
	defer span.End()

	if c.managementToken == "" {
		return apierrors.Validation("tenant management token is not configured")
	}
	if tenantID == "" {
		return apierrors.Validation("tenant id must not be empty")
	}
	req := createTenantRequest{
		Name:                           update.Name,
		OntologyName:                   update.OntologyName,
		VectorSearchDataProperties:     update.VectorSearchDataProperties,
		VectorSearchDocumentProperties: update.VectorSearchDocumentProperties,
	}
	if _, err := c.tp.Patch(ctx, c.tenantURL(tenantID), req, c.opts()); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// DeleteTenant removes a tenant and everything in it. Irreversible.
func (c *Client) DeleteTenant(ctx context.Context, tenantID string) error {
	ctx, span := c.start(ctx, "DeleteTenant")
	defer span.End()

	if c.managementToken == "" {
		return apierrors.Validation("tenant management token is not configured")
	}
	if tenantID == "" {
		return apierrors.Validation("tenant id must not be empty")
	}
	if _, err := c.tp.Delete(ctx, c.tenantURL(tenantID), c.opts()); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

func parseErr(err error) error {
	return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed tenant response"), err)
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
