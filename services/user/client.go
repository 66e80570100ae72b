// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package user manages shadow users: the internal accounts the
// platform keeps for each caller-controlled external user id.
// All operations require a tenant-admin session except
// UserInternalID, which resolves the session's own user.
package user

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

var tracer = otel.Tracer("aleutian.knowledge.user")

// Client talks to the user endpoints of the graph service. Safe for
// concurrent use.
type Client struct {
	tp      *transport.Client
	baseURL string
}

// New binds a user client to the graph service URL.
func New(tp *transport.Client, serviceURL string) *Client {
	return &Client{tp: tp, baseURL: strings.TrimSuffix(serviceURL, "/")}
}

func (c *Client) userURL(segments ...string) string {
	parts := append([]string{c.baseURL, "user"}, segments...)
	return strings.Join(parts, "/")
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "user."+op)
	return ctx, traceSpan{span}
}

// createUserRequest is the body of CreateUser.
type createUserRequest struct {
	ExternalUserID string               `json:"externalUserId"`
	Roles          []datatypes.UserRole `json:"roles,omitempty"`
	Meta           map[string]string    `json:"meta,omitempty"`
}

// CreateUser creates a shadow user for the external user id and
// returns it together with the initial token set for that user.
func (c *Client) CreateUser(ctx context.Context, externalUserID string, roles []datatypes.UserRole, meta map[string]string) (*datatypes.User, error) {
	ctx, span := c.start(ctx, "CreateUser")
	defer span.End()

	if externalUserID == "" {
		return nil, apierrors.Validation("external user id must not be empty")
	}
	req := createUserRequest{ExternalUserID: externalUserID, Roles: roles, Meta: meta}
	resp, err := c.tp.Post(ctx, c.userURL(), req, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &datatypes.User{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok()
	return out, nil
}

// UpdateUserMeta replaces the metadata bag of the user.
func (c *Client) UpdateUserMeta(ctx context.Context, externalUserID string, meta map[string]string) error {
	ctx, span := c.start(ctx, "UpdateUserMeta")
	defer span.End()

	if externalUserID == "" {
		return apierrors.Validation("external user id must not be empty")
	}
	opt := &transport.RequestOptions{Params: url.Values{"externalUserId": {externalUserID}}}
	if _, err := c.tp.Patch(ctx, c.userURL(), map[string]map[string]string{"meta": meta}, opt); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// DeleteUser removes the shadow user and its sessions. Entities owned
// by the user stay in the graph.
func (c *Client) DeleteUser(ctx context.Context, externalUserID string) error {
	ctx, span := c.start(ctx, "DeleteUser")
	defer span.End()

	if externalUserID == "" {
		return apierrors.Validation("external user id must not be empty")
	}
	opt := &transport.RequestOptions{Params: url.Values{"externalUserId": {externalUserID}}}
	if _, err := c.tp.Delete(ctx, c.userURL(), opt); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// Users lists the tenant's shadow users.
func (c *Client) Users(ctx context.Context) ([]datatypes.User, error) {
	ctx, span := c.start(ctx, "Users")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.userURL(), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var out []datatypes.User
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.user_count", len(out)))
	return out, nil
}

// UserInternalID resolves the internal user id behind the session's
// external user id.
func (c *Client) UserInternalID(ctx context.Context) (string, error) {
	ctx, span := c.start(ctx, "UserInternalID")
	defer span.End()

	resp, err := c.tp.Get(ctx, c.userURL("internal-id"), nil)
	if err != nil {
		return "", span.fail(err)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", span.fail(parseErr(err))
	}
	span.ok()
	return out.ID, nil
}

func parseErr(err error) error {
	return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed user response"), err)
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
