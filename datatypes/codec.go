// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// The entity wire format exists in two dialects.
//
// The runtime dialect is what the graph service speaks: literals are a
// map of property IRI to literal list, and the four indexing flags
// travel as booleans.
//
// The import dialect is what the bulk endpoint consumes: literals are
// a flat list tagged with their property IRI under the "literal" key,
// indexing flags collapse into a "targets" array, and the source
// system/reference pair is additionally surfaced at the top level.
//
// Decoding accepts BOTH literal forms regardless of dialect, because
// backend responses historically mix them. Encoding picks one dialect
// explicitly.

// unmarshalStrict wraps a JSON decode failure in the parse-error kind.
func unmarshalStrict(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed response JSON"), err)
	}
	return nil
}

// wireRelation is the value of a "relations" map entry.
type wireRelation struct {
	Relation string            `json:"relation"`
	In       []json.RawMessage `json:"in"`
	Out      []json.RawMessage `json:"out"`
}

// wireLiteral is a single literal in either dialect. Literal (the
// property IRI) is only set in the list form.
type wireLiteral struct {
	Value    string     `json:"value"`
	Locale   LocaleCode `json:"locale,omitempty"`
	Literal  string     `json:"literal,omitempty"`
	DataType string     `json:"dataType,omitempty"`
}

// wireRights is the tenantRights triple.
type wireRights struct {
	Read   bool `json:"read"`
	Write  bool `json:"write"`
	Delete bool `json:"delete"`
}

// wireThing is the superset of both dialects.
type wireThing struct {
	URI               string                  `json:"uri,omitempty"`
	Image             string                  `json:"image,omitempty"`
	Labels            []Label                 `json:"labels"`
	Descriptions      []Description           `json:"descriptions,omitempty"`
	Type              string                  `json:"type"`
	Status            string                  `json:"status,omitempty"`
	Literals          json.RawMessage         `json:"literals,omitempty"`
	Relations         map[string]wireRelation `json:"relations,omitempty"`
	GroupIDs          []string                `json:"groupIds,omitempty"`
	Owner             bool                    `json:"owner"`
	OwnerID           string                  `json:"ownerId,omitempty"`
	UseForNEL         *bool                   `json:"use_for_nel,omitempty"`
	UseVectorIndex    *bool                   `json:"use_for_vector_index,omitempty"`
	UseVectorDocIndex *bool                   `json:"use_for_vector_document_index,omitempty"`
	UseFullText       *bool                   `json:"user_full_text,omitempty"`
	Visibility        string                  `json:"visibility,omitempty"`
	TenantRights      *wireRights             `json:"tenantRights,omitempty"`
	OntologyTypes     []string                `json:"ontologyTypes,omitempty"`

	// Import dialect only.
	Targets           []string `json:"targets,omitempty"`
	SourceSystem      string   `json:"sourceSystem,omitempty"`
	SourceReferenceID string   `json:"sourceReferenceId,omitempty"`
}

// encodeLabels merges main labels and aliases into the wire list.
func encodeLabels(t *ThingObject) []Label {
	out := make([]Label, 0, len(t.Labels)+len(t.Aliases))
	out = append(out, t.Labels...)
	out = append(out, t.Aliases...)
	return out
}

// encodeLiteralMap renders the runtime literal form.
func encodeLiteralMap(m DataPropertyMap) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	wire := make(map[string][]wireLiteral, len(m))
	for ref, props := range m {
		list := make([]wireLiteral, 0, len(props))
		for _, p := range props {
			list = append(list, wireLiteral{
				Value:    p.Value,
				Locale:   p.Locale,
				DataType: string(p.DataType),
			})
		}
		wire[ref.IRI()] = list
	}
	return json.Marshal(wire)
}

// encodeLiteralList renders the import literal form.
func encodeLiteralList(m DataPropertyMap) (json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	var list []wireLiteral
	for ref, props := range m {
		for _, p := range props {
			list = append(list, wireLiteral{
				Value:    p.Value,
				Locale:   p.Locale,
				Literal:  ref.IRI(),
				DataType: string(p.DataType),
			})
		}
	}
	return json.Marshal(list)
}

// encodeRelations collapses relation targets to their URI strings.
func encodeRelations(m ObjectPropertyMap) (map[string]wireRelation, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]wireRelation, len(m))
	for ref, rel := range m {
		wr := wireRelation{Relation: ref.IRI(), In: []json.RawMessage{}, Out: []json.RawMessage{}}
		for _, uri := range rel.Incoming {
			raw, err := json.Marshal(uri)
			if err != nil {
				return nil, err
			}
			wr.In = append(wr.In, raw)
		}
		for _, uri := range rel.Outgoing {
			raw, err := json.Marshal(uri)
			if err != nil {
				return nil, err
			}
			wr.Out = append(wr.Out, raw)
		}
		out[ref.IRI()] = wr
	}
	return out, nil
}

// encodeCommon fills the dialect-independent fields.
func encodeCommon(t *ThingObject) (wireThing, error) {
	rels, err := encodeRelations(t.ObjectProperties)
	if err != nil {
		return wireThing{}, err
	}
	w := wireThing{
		URI:           t.URI,
		Image:         t.Image,
		Labels:        encodeLabels(t),
		Descriptions:  t.Descriptions,
		Type:          t.ConceptType.IRI(),
		Relations:     rels,
		GroupIDs:      t.GroupIDs,
		Owner:         t.Owner,
		OwnerID:       t.OwnerID,
		Visibility:    t.Visibility,
		OntologyTypes: t.OntologyTypes,
	}
	if t.Status != StatusUnknown {
		w.Status = t.Status.String()
	}
	access := t.TenantAccess
	w.TenantRights = &wireRights{Read: access.Read, Write: access.Write, Delete: access.Delete}
	return w, nil
}

// EncodeRuntime serializes an entity in the runtime dialect.
func EncodeRuntime(t *ThingObject) ([]byte, error) {
	w, err := encodeCommon(t)
	if err != nil {
		return nil, err
	}
	if w.Literals, err = encodeLiteralMap(t.DataProperties); err != nil {
		return nil, err
	}
	nel, vec, vecDoc, fullText := t.UseForNEL, t.UseVectorIndex, t.UseVectorIndexDocument, t.UseFullTextIndex
	w.UseForNEL = &nel
	w.UseVectorIndex = &vec
	w.UseVectorDocIndex = &vecDoc
	w.UseFullText = &fullText
	return json.Marshal(w)
}

// EncodeImport serializes an entity in the import dialect.
func EncodeImport(t *ThingObject) ([]byte, error) {
	w, err := encodeCommon(t)
	if err != nil {
		return nil, err
	}
	if w.Literals, err = encodeLiteralList(t.DataProperties); err != nil {
		return nil, err
	}
	for _, tgt := range t.Targets() {
		w.Targets = append(w.Targets, string(tgt))
	}
	w.SourceSystem = t.SourceSystem()
	w.SourceReferenceID = t.SourceReferenceID()
	return json.Marshal(w)
}

// decodeLiterals accepts either literal form.
func decodeLiterals(raw json.RawMessage) (DataPropertyMap, error) {
	if len(raw) == 0 {
		return DataPropertyMap{}, nil
	}
	out := DataPropertyMap{}

	var asMap map[string][]wireLiteral
	if err := json.Unmarshal(raw, &asMap); err == nil {
		for iri, list := range asMap {
			ref, err := ParsePropertyReference(iri)
			if err != nil {
				return nil, err
			}
			for _, wl := range list {
				out[ref] = append(out[ref], DataProperty{
					Value:    wl.Value,
					Property: ref,
					Locale:   wl.Locale,
					DataType: XSDType(wl.DataType),
				})
			}
		}
		return out, nil
	}

	var asList []wireLiteral
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, apierrors.Wrap(apierrors.New(apierrors.KindParse,
			"literals is neither a map nor a list"), err)
	}
	for _, wl := range asList {
		ref, err := ParsePropertyReference(wl.Literal)
		if err != nil {
			return nil, err
		}
		out[ref] = append(out[ref], DataProperty{
			Value:    wl.Value,
			Property: ref,
			Locale:   wl.Locale,
			DataType: XSDType(wl.DataType),
		})
	}
	return out, nil
}

// decodeRelationSide resolves each element to a URI string. Elements
// may be plain strings or fully inlined entities, which collapse to
// their uri (or source reference id when no URI was assigned yet).
func decodeRelationSide(raw []json.RawMessage) ([]string, error) {
	out := make([]string, 0, len(raw))
	for _, el := range raw {
		var s string
		if err := json.Unmarshal(el, &s); err == nil {
			out = append(out, s)
			continue
		}
		inline, err := DecodeRuntime(el)
		if err != nil {
			return nil, err
		}
		out = append(out, RelationTarget(inline))
	}
	return out, nil
}

// decodeThing builds an entity from the wire superset.
func decodeThing(w wireThing) (*ThingObject, error) {
	conceptType, err := ParseClassReference(w.Type)
	if err != nil {
		return nil, err
	}
	t := &ThingObject{
		URI:              w.URI,
		Image:            w.Image,
		ConceptType:      conceptType,
		Descriptions:     w.Descriptions,
		GroupIDs:         w.GroupIDs,
		Owner:            w.Owner,
		OwnerID:          w.OwnerID,
		Visibility:       w.Visibility,
		OntologyTypes:    w.OntologyTypes,
		ObjectProperties: ObjectPropertyMap{},
	}
	for _, l := range w.Labels {
		if l.IsMain {
			t.Labels = append(t.Labels, l)
		} else {
			t.Aliases = append(t.Aliases, l)
		}
	}
	if t.DataProperties, err = decodeLiterals(w.Literals); err != nil {
		return nil, err
	}
	for iri, wr := range w.Relations {
		relIRI := wr.Relation
		if relIRI == "" {
			relIRI = iri
		}
		ref, err := ParsePropertyReference(relIRI)
		if err != nil {
			return nil, err
		}
		rel := ObjectProperty{Relation: ref}
		if rel.Incoming, err = decodeRelationSide(wr.In); err != nil {
			return nil, err
		}
		if rel.Outgoing, err = decodeRelationSide(wr.Out); err != nil {
			return nil, err
		}
		t.ObjectProperties[ref] = rel
	}
	if w.TenantRights != nil {
		t.TenantAccess = TenantAccess{
			Read:   w.TenantRights.Read,
			Write:  w.TenantRights.Write,
			Delete: w.TenantRights.Delete,
		}
	}

	switch {
	case len(w.Targets) > 0:
		targets := make([]IndexTarget, 0, len(w.Targets))
		for _, s := range w.Targets {
			targets = append(targets, IndexTarget(s))
		}
		t.SetTargets(targets)
	default:
		if w.UseForNEL != nil {
			t.UseForNEL = *w.UseForNEL
		}
		if w.UseVectorIndex != nil {
			t.UseVectorIndex = *w.UseVectorIndex
		}
		if w.UseVectorDocIndex != nil {
			t.UseVectorIndexDocument = *w.UseVectorDocIndex
		}
		if w.UseFullText != nil {
			t.UseFullTextIndex = *w.UseFullText
		}
	}

	if w.SourceSystem != "" && t.SourceSystem() == "" {
		t.SetSourceSystem(w.SourceSystem)
	}
	if w.SourceReferenceID != "" && t.SourceReferenceID() == "" {
		t.SetSourceReferenceID(w.SourceReferenceID)
	}
	// Status is assigned last so the mutators above do not trip the
	// Synced -> Updated transition on a freshly decoded entity.
	t.Status = ParseStatusFlag(w.Status)
	return t, nil
}

// DecodeRuntime deserializes an entity, accepting either dialect on
// input.
func DecodeRuntime(data []byte) (*ThingObject, error) {
	var w wireThing
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, apierrors.Wrap(apierrors.New(apierrors.KindParse, "malformed entity JSON"), err)
	}
	return decodeThing(w)
}

// DecodeImport is DecodeRuntime under the import dialect's name; both
// accept both dialects.
func DecodeImport(data []byte) (*ThingObject, error) {
	return DecodeRuntime(data)
}
