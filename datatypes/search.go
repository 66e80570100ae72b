// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"time"
)

// FilterMode combines metadata predicates in semantic search.
type FilterMode string

const (
	FilterAnd FilterMode = "AND"
	FilterOr  FilterMode = "OR"
)

// DocumentMeta is the typed metadata of an indexed document chunk.
//
// The backend attaches arbitrary entity-mention fields to document
// metadata. Known fields are typed below; everything else lands in
// ExtraFields so a decode/encode round trip is lossless.
type DocumentMeta struct {
	ConceptType  string
	Creation     *time.Time
	Modification *time.Time
	Locale       LocaleCode
	ChunkIndex   *int
	Score        *float64

	// ExtraFields holds unknown metadata keys verbatim.
	ExtraFields map[string]any
}

// docMetaKnownKeys are the keys lifted into typed fields.
var docMetaKnownKeys = map[string]struct{}{
	"conceptType": {}, "creation": {}, "modification": {},
	"locale": {}, "chunkIndex": {}, "score": {},
}

// UnmarshalJSON splits known keys from the extra-field bag.
func (m *DocumentMeta) UnmarshalJSON(data []byte) error {
	var typed struct {
		ConceptType  string     `json:"conceptType"`
		Creation     *time.Time `json:"creation"`
		Modification *time.Time `json:"modification"`
		Locale       LocaleCode `json:"locale"`
		ChunkIndex   *int       `json:"chunkIndex"`
		Score        *float64   `json:"score"`
	}
	if err := unmarshalStrict(data, &typed); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := unmarshalStrict(data, &raw); err != nil {
		return err
	}
	m.ConceptType = typed.ConceptType
	m.Creation = typed.Creation
	m.Modification = typed.Modification
	m.Locale = typed.Locale
	m.ChunkIndex = typed.ChunkIndex
	m.Score = typed.Score
	m.ExtraFields = nil
	for k, v := range raw {
		if _, known := docMetaKnownKeys[k]; known {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		if m.ExtraFields == nil {
			m.ExtraFields = map[string]any{}
		}
		m.ExtraFields[k] = val
	}
	return nil
}

// MarshalJSON re-merges the extra-field bag with the typed fields.
func (m DocumentMeta) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.ExtraFields)+6)
	for k, v := range m.ExtraFields {
		out[k] = v
	}
	if m.ConceptType != "" {
		out["conceptType"] = m.ConceptType
	}
	if m.Creation != nil {
		out["creation"] = m.Creation
	}
	if m.Modification != nil {
		out["modification"] = m.Modification
	}
	if m.Locale != "" {
		out["locale"] = m.Locale
	}
	if m.ChunkIndex != nil {
		out["chunkIndex"] = m.ChunkIndex
	}
	if m.Score != nil {
		out["score"] = m.Score
	}
	return json.Marshal(out)
}

// SemanticDocument is an indexed document chunk returned by document
// search and by the management stream.
type SemanticDocument struct {
	ID         string       `json:"id"`
	Content    string       `json:"content"`
	ContentURI string       `json:"contentUri,omitempty"`
	Meta       DocumentMeta `json:"meta"`
}

// LabelMatch is a ranked label hit from semantic label search.
// Score is in [0, 1].
type LabelMatch struct {
	EntityURI string     `json:"entityUri"`
	Label     string     `json:"label"`
	Locale    LocaleCode `json:"locale"`
	Score     float64    `json:"score"`
}

// DocumentSearchRequest is the body of the document-search endpoint.
type DocumentSearchRequest struct {
	Query      string         `json:"query" validate:"required"`
	Locale     LocaleCode     `json:"locale" validate:"required,locale"`
	MaxResults int            `json:"maxResults,omitempty" validate:"gte=0,lte=100"`
	Filters    map[string]any `json:"filters,omitempty"`
	FilterMode FilterMode     `json:"filterMode,omitempty" validate:"omitempty,oneof=AND OR"`
}

// LabelSearchRequest is the body of the label-match endpoint.
type LabelSearchRequest struct {
	Query      string         `json:"query" validate:"required"`
	Locale     LocaleCode     `json:"locale" validate:"required,locale"`
	MaxResults int            `json:"maxResults,omitempty" validate:"gte=0,lte=100"`
	Filters    map[string]any `json:"filters,omitempty"`
	FilterMode FilterMode     `json:"filterMode,omitempty" validate:"omitempty,oneof=AND OR"`
}

// DocumentSearchResult is a scored document hit. Score is in [0, 1].
type DocumentSearchResult struct {
	Document SemanticDocument `json:"document"`
	Score    float64          `json:"score"`
}
