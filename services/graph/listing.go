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
	"iter"
	"net/url"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
	"github.com/AleutianAI/AleutianKnowledge/transport"
)

// Listing fetches one page of entities of the concept type (and its
// subclasses).
func (c *Client) Listing(ctx context.Context, conceptType datatypes.OntologyClassReference, opts ListingOptions) (*ListingResult, error) {
	ctx, span := c.start(ctx, "Listing")
	defer span.End()

	if conceptType.IsZero() {
		return nil, apierrors.Validation("listing requires a concept type")
	}
	params := url.Values{}
	params.Set("type", conceptType.IRI())
	if opts.PageID != "" {
		params.Set("pageId", opts.PageID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Locale != "" {
		params.Set("locale", string(opts.Locale))
	}
	if opts.OnlyOwned {
		params.Set("isOwner", "true")
	}
	if opts.Visibility != "" {
		params.Set("visibility", string(opts.Visibility))
	}

	resp, err := c.tp.Get(ctx, c.entityURL(), &transport.RequestOptions{Params: params})
	if err != nil {
		return nil, span.fail(err)
	}
	var wire wireListing
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed listing response"), err))
	}
	entities, err := decodeEntities(wire.Entities)
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok(
		attribute.Int("kg.entity_count", len(entities)),
		attribute.Int("kg.total", wire.Total),
	)
	return &ListingResult{Entities: entities, Total: wire.Total, NextPageID: wire.NextPageID}, nil
}

// ListAll iterates over every entity of the concept type, fetching
// pages lazily. The sequence yields entities in backend order and
// stops after an empty page or a page without a continuation cursor.
//
// Token refresh happens transparently between page fetches. The
// sequence is forward-only and single-consumer: do not share it
// across goroutines, and range over it at most once.
func (c *Client) ListAll(ctx context.Context, conceptType datatypes.OntologyClassReference, opts ListingOptions) iter.Seq2[*datatypes.ThingObject, error] {
	return func(yield func(*datatypes.ThingObject, error) bool) {
		pageID := opts.PageID
		for {
			pageOpts := opts
			pageOpts.PageID = pageID
			page, err := c.Listing(ctx, conceptType, pageOpts)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page.Entities) == 0 {
				return
			}
			for _, entity := range page.Entities {
				if !yield(entity, nil) {
					return
				}
			}
			if page.NextPageID == "" {
				return
			}
			pageID = page.NextPageID
		}
	}
}

// CountListing walks the listing until exhaustion and returns the
// number of entities yielded. Mostly useful to verify the first
// page's total against reality.
func (c *Client) CountListing(ctx context.Context, conceptType datatypes.OntologyClassReference, opts ListingOptions) (int, error) {
	count := 0
	for _, err := range c.ListAll(ctx, conceptType, opts) {
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
