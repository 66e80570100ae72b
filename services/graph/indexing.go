// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// indexRequest is the body of the index-target endpoints.
type indexRequest struct {
	Targets []datatypes.IndexTarget `json:"targets"`
}

// indexCall posts/deletes index targets and decodes the outcome map.
func (c *Client) indexCall(ctx context.Context, op, uri string, targets []datatypes.IndexTarget, remove bool) (IndexOutcome, error) {
	ctx, span := c.start(ctx, op)
	defer span.End()

	if uri == "" {
		return nil, apierrors.Validation("entity URI must not be empty")
	}
	if len(targets) == 0 {
		return nil, apierrors.Validation("at least one index target is required")
	}
	for _, t := range targets {
		switch t {
		case datatypes.TargetNEL, datatypes.TargetVectorSearchWord,
			datatypes.TargetVectorSearchDocument, datatypes.TargetElasticSearch:
		default:
			return nil, apierrors.Validation("unknown index target %q", t)
		}
	}

	endpoint := c.entityURL(uri, "indexes")
	var body []byte
	if remove {
		resp, derr := c.tp.DeleteBody(ctx, endpoint, indexRequest{Targets: targets}, nil)
		if derr != nil {
			return nil, span.fail(derr)
		}
		body = resp.Body
	} else {
		resp, perr := c.tp.Post(ctx, endpoint, indexRequest{Targets: targets}, nil)
		if perr != nil {
			return nil, span.fail(perr)
		}
		body = resp.Body
	}

	outcome := IndexOutcome{}
	if err := json.Unmarshal(body, &outcome); err != nil {
		return nil, span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed index outcome"), err))
	}
	span.ok(attribute.Int("kg.target_count", len(targets)))
	return outcome, nil
}

// AddIndexTargets adds the given index targets to an existing entity.
// The outcome map carries the backend's per-target result, e.g.
// "UPSERT" or "Target already exists".
func (c *Client) AddIndexTargets(ctx context.Context, uri string, targets []datatypes.IndexTarget) (IndexOutcome, error) {
	return c.indexCall(ctx, "AddIndexTargets", uri, targets, false)
}

// RemoveIndexTargets removes the given index targets from an existing
// entity. Per-target results are "DELETE" or "Not found".
func (c *Client) RemoveIndexTargets(ctx context.Context, uri string, targets []datatypes.IndexTarget) (IndexOutcome, error) {
	return c.indexCall(ctx, "RemoveIndexTargets", uri, targets, true)
}
