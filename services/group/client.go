// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package group manages sharing groups: membership, join keys, and
// the entities a group grants access to.
package group

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

var tracer = otel.Tracer("aleutian.knowledge.group")

// Client talks to the group endpoints of the graph service. Safe for
// concurrent use.
type Client struct {
	tp      *transport.Client
	baseURL string
}

// New binds a group client to the graph service URL.
func New(tp *transport.Client, serviceURL string) *Client {
	return &Client{tp: tp, baseURL: strings.TrimSuffix(serviceURL, "/")}
}

// groupURL builds "{graph}/group" plus optional path segments.
func (c *Client) groupURL(segments ...string) string {
	parts := append([]string{c.baseURL, "group"}, segments...)
	for i, p := range parts[1:] {
		parts[i+1] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

func (c *Client) start(ctx context.Context, op string) (context.Context, traceSpan) {
	ctx, span := tracer.Start(ctx, "group."+op)
	return ctx, traceSpan{span}
}

// ==== Group lifecycle ====

// createGroupRequest is the body of CreateGroup and UpdateGroup.
type createGroupRequest struct {
	Name   string                     `json:"name"`
	Rights datatypes.GroupAccessRight `json:"rights,omitempty"`
}

// CreateGroup creates a group owned by the session user. The returned
// group carries the server-assigned id and the join key.
func (c *Client) CreateGroup(ctx context.Context, name string, rights datatypes.GroupAccessRight) (*datatypes.Group, error) {
	ctx, span := c.start(ctx, "CreateGroup")
	defer span.End()

	if name == "" {
		return nil, apierrors.Validation("group name must not be empty")
	}
	resp, err := c.tp.Post(ctx, c.groupURL(), createGroupRequest{Name: name, Rights: rights}, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &datatypes.Group{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.String("kg.group_id", out.ID))
	return out, nil
}

// UpdateGroup renames a group or changes its rights. Zero values are
// left untouched.
func (c *Client) UpdateGroup(ctx context.Context, groupID, name string, rights datatypes.GroupAccessRight) error {
	ctx, span := c.start(ctx, "UpdateGroup")
	defer span.End()

	if groupID == "" {
		return apierrors.Validation("group id must not be empty")
	}
	if name == "" && rights == "" {
		return apierrors.Validation("nothing to update")
	}
	if _, err := c.tp.Patch(ctx, c.groupURL(groupID), createGroupRequest{Name: name, Rights: rights}, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// DeleteGroup deletes a group. With force the shared entities are
// unshared as part of the delete; without it a non-empty group is
// rejected by the service.
func (c *Client) DeleteGroup(ctx context.Context, groupID string, force bool) error {
	ctx, span := c.start(ctx, "DeleteGroup")
	defer span.End()

	if groupID == "" {
		return apierrors.Validation("group id must not be empty")
	}
	opt := &transport.RequestOptions{Params: url.Values{"force": {boolParam(force)}}}
	if _, err := c.tp.Delete(ctx, c.groupURL(groupID), opt); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// Groups lists the groups the session user belongs to. With admin the
// listing covers the whole tenant and includes membership; that form
// requires a tenant-admin session.
func (c *Client) Groups(ctx context.Context, admin bool) ([]datatypes.GroupInfo, error) {
	ctx, span := c.start(ctx, "Groups")
	defer span.End()

	var opt *transport.RequestOptions
	if admin {
		opt = &transport.RequestOptions{Params: url.Values{"admin": {"true"}}}
	}
	resp, err := c.tp.Get(ctx, c.groupURL(), opt)
	if err != nil {
		return nil, span.fail(err)
	}
	var out []datatypes.GroupInfo
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok(attribute.Int("kg.group_count", len(out)))
	return out, nil
}

// Group fetches a single group. The join key is present only for the
// group owner and tenant admins.
func (c *Client) Group(ctx context.Context, groupID string) (*datatypes.Group, error) {
	ctx, span := c.start(ctx, "Group")
	defer span.End()

	if groupID == "" {
		return nil, apierrors.Validation("group id must not be empty")
	}
	resp, err := c.tp.Get(ctx, c.groupURL(groupID), nil)
	if err != nil {
		return nil, span.fail(err)
	}
	out := &datatypes.Group{}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return nil, span.fail(parseErr(err))
	}
	span.ok()
	return out, nil
}

// ==== Membership ====

// JoinGroup joins the session user to the group using its join key.
func (c *Client) JoinGroup(ctx context.Context, groupID, joinKey string) error {
	ctx, span := c.start(ctx, "JoinGroup")
	defer span.End()

	if groupID == "" || joinKey == "" {
		return apierrors.Validation("group id and join key are required")
	}
	opt := &transport.RequestOptions{Params: url.Values{"joinKey": {joinKey}}}
	if _, err := c.tp.Post(ctx, c.groupURL(groupID, "join"), nil, opt); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// LeaveGroup removes the session user from the group.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	ctx, span := c.start(ctx, "LeaveGroup")
	defer span.End()

	if groupID == "" {
		return apierrors.Validation("group id must not be empty")
	}
	if _, err := c.tp.Post(ctx, c.groupURL(groupID, "leave"), nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// AddUser adds a user to the group. Owner-only.
func (c *Client) AddUser(ctx context.Context, groupID, userID string) error {
	ctx, span := c.start(ctx, "AddUser")
	defer span.End()

	if groupID == "" || userID == "" {
		return apierrors.Validation("group id and user id are required")
	}
	opt := &transport.RequestOptions{Params: url.Values{"userId": {userID}}}
	if _, err := c.tp.Post(ctx, c.groupURL(groupID, "user", "add"), nil, opt); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// RemoveUser removes a user from the group. Without force the user's
// shared entities stay shared; with force their entities are removed
// from the group as well.
func (c *Client) RemoveUser(ctx context.Context, groupID, userID string, force bool) error {
	ctx, span := c.start(ctx, "RemoveUser")
	defer span.End()

	if groupID == "" || userID == "" {
		return apierrors.Validation("group id and user id are required")
	}
	opt := &transport.RequestOptions{Params: url.Values{
		"userId": {userID},
		"force":  {boolParam(force)},
	}}
	if _, err := c.tp.Post(ctx, c.groupURL(groupID, "user", "remove"), nil, opt); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// ==== Entity sharing ====

// AddEntity shares an entity with the group.
func (c *Client) AddEntity(ctx context.Context, groupID, entityURI string) error {
	ctx, span := c.start(ctx, "AddEntity")
	defer span.End()

	if groupID == "" || entityURI == "" {
		return apierrors.Validation("group id and entity URI are required")
	}
	if _, err := c.tp.Post(ctx, c.groupURL(groupID, "entity", entityURI, "add"), nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

// RemoveEntity unshares an entity from the group.
func (c *Client) RemoveEntity(ctx context.Context, groupID, entityURI string) error {
	ctx, span := c.start(ctx, "RemoveEntity")
	defer span.End()

	if groupID == "" || entityURI == "" {
		return apierrors.Validation("group id and entity URI are required")
	}
	if _, err := c.tp.Post(ctx, c.groupURL(groupID, "entity", entityURI, "remove"), nil, nil); err != nil {
		return span.fail(err)
	}
	span.ok()
	return nil
}

func boolParam(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func parseErr(err error) error {
	return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed group response"), err)
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
