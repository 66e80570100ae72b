// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"encoding/json"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
)

// LiteralPattern selects how a literal search term is matched.
type LiteralPattern string

const (
	PatternRegex LiteralPattern = "REGEX"
	PatternEq    LiteralPattern = "EQ"
	PatternNeq   LiteralPattern = "NEQ"
	PatternGt    LiteralPattern = "GT"
	PatternGte   LiteralPattern = "GTE"
	PatternLt    LiteralPattern = "LT"
	PatternLte   LiteralPattern = "LTE"
)

// SearchResult is a page of search hits. NextPageToken is empty on
// the last page.
type SearchResult struct {
	Entities      []*datatypes.ThingObject
	NextPageToken string
}

// ListingResult is one page of the entity listing. Total is the
// server-side count matching the filter, independent of page size.
type ListingResult struct {
	Entities   []*datatypes.ThingObject
	Total      int
	NextPageID string
}

// ListingOptions filter the entity listing.
type ListingOptions struct {
	// PageID resumes a previous listing; empty starts from the first
	// page. Opaque backend cursor.
	PageID string

	// Limit bounds the page size. Zero lets the backend choose.
	Limit int

	// Locale restricts labels/descriptions in the response.
	Locale datatypes.LocaleCode

	// OnlyOwned restricts the listing to entities owned by the
	// caller.
	OnlyOwned bool

	// Visibility filters by sharing state. Empty means ALL.
	Visibility datatypes.Visibility
}

// Triple is one edge of an activated subgraph.
type Triple struct {
	Subject   string
	Predicate datatypes.OntologyPropertyReference
	Object    string
}

// ActivationResult is the induced subgraph around the seed URIs.
type ActivationResult struct {
	Entities []*datatypes.ThingObject
	Triples  []Triple
}

// IndexOutcome is the per-target result of an index management call.
// Values are the backend's literal outcome strings: "UPSERT",
// "DELETE", "Target already exists", "Not found".
type IndexOutcome map[datatypes.IndexTarget]string

// wireListing mirrors the listing response body.
type wireListing struct {
	Entities   []json.RawMessage `json:"entities"`
	Total      int               `json:"total"`
	NextPageID string            `json:"nextPageId,omitempty"`
}

// wireSearch mirrors a search response body.
type wireSearch struct {
	Entities      []json.RawMessage `json:"entities"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

// decodeEntities decodes a raw entity list.
func decodeEntities(raw []json.RawMessage) ([]*datatypes.ThingObject, error) {
	out := make([]*datatypes.ThingObject, 0, len(raw))
	for _, r := range raw {
		t, err := datatypes.DecodeRuntime(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
