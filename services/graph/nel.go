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

// EntityMention is one linked span of text: the mention boundaries
// plus the entity the NEL pipeline resolved it to.
type EntityMention struct {
	StartPosition int     `json:"startPosition"`
	EndPosition   int     `json:"endPosition"`
	Text          string  `json:"text"`
	EntityURI     string  `json:"entityUri"`
	ConceptType   string  `json:"conceptType,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
}

// LinkPersonalEntities runs named-entity linking over the text
// against the caller's accessible subgraph.
func (c *Client) LinkPersonalEntities(ctx context.Context, text string, locale datatypes.LocaleCode) ([]EntityMention, error) {
	ctx, span := c.start(ctx, "LinkPersonalEntities")
	defer span.End()

	if text == "" {
		return nil, apierrors.Validation("text must not be empty")
	}
	if !datatypes.IsSupportedLocale(locale) {
		return nil, apierrors.Validation("locale %s is not supported for NEL", locale)
	}
	body := map[string]string{"locale": string(locale), "text": text}
	resp, err := c.tp.Post(ctx, c.baseURL+"/nel/text", body, nil)
	if err != nil {
		return nil, span.fail(err)
	}
	var mentions []EntityMention
	if err := json.Unmarshal(resp.Body, &mentions); err != nil {
		return nil, span.fail(apierrors.Wrap(
			apierrors.New(apierrors.KindParse, "malformed NEL response"), err))
	}
	span.ok(attribute.Int("kg.mention_count", len(mentions)))
	return mentions, nil
}
