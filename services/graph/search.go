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

// searchRequest is the shared body of the graph search endpoints.
type searchRequest struct {
	Term          string `json:"term,omitempty"`
	Locale        string `json:"locale"`
	ExactMatch    bool   `json:"exactMatch,omitempty"`
	Literal       string `json:"literal,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
	Relation      string `json:"relation,omitempty"`
	SubjectURI    string `json:"subjectUri,omitempty"`
	ObjectURI     string `json:"objectUri,omitempty"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// searchCall posts a search request and decodes the entity page.
func (c *Client) searchCall(ctx context.Context, op, path string, req searchRequest) (*SearchResult, error) {
	ctx, span := c.start(ctx, op)
	defer span.End()

	resp, err := c.tp.Post(ctx, c.baseURL+path, req, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var wire wireSearch
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed search response"), err))
	}
	entities, err := decodeEntities(wire.Entities)
	if err != nil {
		return nil, span.fail(err)
	}
	span.ok(attribute.Int("kg.entity_count", len(entities)))
	return &SearchResult{Entities: entities, NextPageToken: wire.NextPageToken}, nil
}

// SearchLabels finds entities whose label matches the term. With
// exactMatch the term must equal the label; otherwise prefix/fuzzy
// matching is up to the backend.
func (c *Client) SearchLabels(ctx context.Context, term string, locale datatypes.LocaleCode, exactMatch bool, pageToken string) (*SearchResult, error) {
	if term == "" {
		return nil, apierrors.Validation("search term must not be empty")
	}
	return c.searchCall(ctx, "SearchLabels", "/search/labels", searchRequest{
		Term:          term,
		Locale:        string(locale),
		ExactMatch:    exactMatch,
		NextPageToken: pageToken,
	})
}

// SearchDescriptions finds entities whose description matches the
// term.
func (c *Client) SearchDescriptions(ctx context.Context, term string, locale datatypes.LocaleCode, pageToken string) (*SearchResult, error) {
	if term == "" {
		return nil, apierrors.Validation("search term must not be empty")
	}
	return c.searchCall(ctx, "SearchDescriptions", "/search/description", searchRequest{
		Term:          term,
		Locale:        string(locale),
		NextPageToken: pageToken,
	})
}

// SearchLiterals finds entities by data-property value under the
// given property reference and match pattern.
func (c *Client) SearchLiterals(ctx context.Context, term string, property datatypes.OntologyPropertyReference, pattern LiteralPattern, locale datatypes.LocaleCode, pageToken string) (*SearchResult, error) {
	if property.IsZero() {
		return nil, apierrors.Validation("literal search requires a property reference")
	}
	return c.searchCall(ctx, "SearchLiterals", "/search/literal", searchRequest{
		Term:          term,
		Literal:       property.IRI(),
		Pattern:       string(pattern),
		Locale:        string(locale),
		NextPageToken: pageToken,
	})
}

// SearchRelations finds entities on the other end of the relation
// from the given subject OR object. Exactly one of subjectURI and
// objectURI must be supplied; violating that fails before any HTTP
// call.
func (c *Client) SearchRelations(ctx context.Context, subjectURI, objectURI string, relation datatypes.OntologyPropertyReference, locale datatypes.LocaleCode, pageToken string) (*SearchResult, error) {
	if (subjectURI == "") == (objectURI == "") {
		return nil, apierrors.Validation(
			"Only one parameter is allowed: either subject_uri or object_uri")
	}
	if relation.IsZero() {
		return nil, apierrors.Validation("relation search requires a relation reference")
	}
	return c.searchCall(ctx, "SearchRelations", "/search/relation", searchRequest{
		SubjectURI:    subjectURI,
		ObjectURI:     objectURI,
		Relation:      relation.IRI(),
		Locale:        string(locale),
		NextPageToken: pageToken,
	})
}

// wireActivation mirrors the activation response body.
type wireActivation struct {
	Entities []json.RawMessage `json:"entities"`
	Triples  [][3]string       `json:"triples"`
}

// Activations returns the induced subgraph reached from the seed URIs
// within the given traversal depth.
func (c *Client) Activations(ctx context.Context, uris []string, depth int) (*ActivationResult, error) {
	ctx, span := c.start(ctx, "Activations")
	defer span.End()

	if len(uris) == 0 {
		return nil, apierrors.Validation("at least one seed URI is required")
	}
	if depth < 0 {
		return nil, apierrors.Validation("depth must not be negative")
	}
	body := map[string]any{"uris": uris, "levels": depth}
	resp, err := c.tp.Post(ctx, c.entityURL("activations"), body, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var wire wireActivation
	if err := json.Unmarshal(resp.Body, &wire); err != nil {
		return nil, span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed activation response"), err))
	}
	entities, err := decodeEntities(wire.Entities)
	if err != nil {
		return nil, span.fail(err)
	}
	result := &ActivationResult{Entities: entities}
	for _, t := range wire.Triples {
		pred, err := datatypes.ParsePropertyReference(t[1])
		if err != nil {
			return nil, span.fail(err)
		}
		result.Triples = append(result.Triples, Triple{Subject: t[0], Predicate: pred, Object: t[2]})
	}
	span.ok(
		attribute.Int("kg.entity_count", len(result.Entities)),
		attribute.Int("kg.triple_count", len(result.Triples)),
	)
	return result, nil
}
