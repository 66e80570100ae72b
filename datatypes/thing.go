// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// StatusFlag tracks the sync state of an entity relative to the graph.
//
// Transitions: Unknown -> Created on create, Synced -> Updated on a
// local mutation after sync, * -> Synced on a successful push.
type StatusFlag int

const (
	StatusUnknown StatusFlag = iota
	StatusCreated
	StatusUpdated
	StatusSynced
)

// String returns the wire name of the flag.
func (s StatusFlag) String() string {
	switch s {
	case StatusCreated:
		return "CREATED"
	case StatusUpdated:
		return "UPDATED"
	case StatusSynced:
		return "SYNCED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatusFlag maps a wire name back to the flag. Unrecognized
// names map to StatusUnknown.
func ParseStatusFlag(s string) StatusFlag {
	switch s {
	case "CREATED":
		return StatusCreated
	case "UPDATED":
		return StatusUpdated
	case "SYNCED":
		return StatusSynced
	default:
		return StatusUnknown
	}
}

// IndexTarget names a downstream index an entity participates in.
type IndexTarget string

const (
	TargetNEL                  IndexTarget = "NEL"
	TargetVectorSearchWord     IndexTarget = "VectorSearchWord"
	TargetVectorSearchDocument IndexTarget = "VectorSearchDocument"
	TargetElasticSearch        IndexTarget = "ElasticSearch"
)

// AllIndexTargets lists every index target in a stable order.
var AllIndexTargets = []IndexTarget{
	TargetNEL, TargetVectorSearchWord, TargetVectorSearchDocument, TargetElasticSearch,
}

// TenantAccess is the tenant-wide rights triple on an entity.
type TenantAccess struct {
	Read   bool
	Write  bool
	Delete bool
}

// Visibility values accepted by the listing endpoint.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityShared  Visibility = "SHARED"
	VisibilityAll     Visibility = "ALL"
)

// ParseVisibility validates a visibility string.
func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(s); v {
	case VisibilityPublic, VisibilityPrivate, VisibilityShared, VisibilityAll:
		return v, nil
	}
	return "", validationErrorf("unknown visibility %q", s)
}

// ThingObject is a node in the knowledge graph.
//
// A ThingObject with an empty URI is client-local: it has not been
// created in the graph yet and may only be referenced from other
// entities by its source reference id.
type ThingObject struct {
	// URI is assigned by the backend on create and empty until then.
	URI string

	// ConceptType is the ontology class of the entity.
	ConceptType OntologyClassReference

	// Labels are main labels, Aliases the non-main ones. The split is
	// maintained by the mutators; on the wire both travel in one list
	// distinguished by the isMain flag.
	Labels  []Label
	Aliases []Label

	Descriptions []Description

	// Image is a URL to the entity's image, if any.
	Image string

	DataProperties   DataPropertyMap
	ObjectProperties ObjectPropertyMap

	TenantAccess TenantAccess
	Status       StatusFlag

	// Indexing targets.
	UseForNEL              bool
	UseVectorIndex         bool
	UseVectorIndexDocument bool
	UseFullTextIndex       bool

	// Ownership.
	Owner    bool
	OwnerID  string
	GroupIDs []string

	Visibility string

	// OntologyTypes carries the full type list for entities indexed by
	// an external system; empty for ordinary entities.
	OntologyTypes []string
}

// NewThingObject builds a client-local entity of the given concept
// type with a single main label.
func NewThingObject(conceptType OntologyClassReference, label string, locale LocaleCode) *ThingObject {
	t := &ThingObject{
		ConceptType:      conceptType,
		DataProperties:   DataPropertyMap{},
		ObjectProperties: ObjectPropertyMap{},
		Owner:            true,
	}
	if label != "" {
		t.AddLabel(label, locale)
	}
	return t
}

// markMutated applies the status transition for a local mutation.
func (t *ThingObject) markMutated() {
	if t.Status == StatusSynced {
		t.Status = StatusUpdated
	}
}

// AddLabel sets the main label for the locale. An existing main label
// for the same locale is demoted to an alias, keeping the invariant of
// at most one main label per locale.
func (t *ThingObject) AddLabel(value string, locale LocaleCode) {
	for i, l := range t.Labels {
		if l.Locale == locale {
			t.Aliases = append(t.Aliases, NewAlias(l.Value, locale))
			t.Labels[i] = NewLabel(value, locale)
			t.markMutated()
			return
		}
	}
	t.Labels = append(t.Labels, NewLabel(value, locale))
	t.markMutated()
}

// AddAlias appends an alias label for the locale.
func (t *ThingObject) AddAlias(value string, locale LocaleCode) {
	t.Aliases = append(t.Aliases, NewAlias(value, locale))
	t.markMutated()
}

// AddDescription sets the description for the locale, replacing an
// existing one.
func (t *ThingObject) AddDescription(text string, locale LocaleCode) {
	for i, d := range t.Descriptions {
		if d.Locale == locale {
			t.Descriptions[i] = NewDescription(text, locale)
			t.markMutated()
			return
		}
	}
	t.Descriptions = append(t.Descriptions, NewDescription(text, locale))
	t.markMutated()
}

// Label returns the main label for the locale, if present.
func (t *ThingObject) Label(locale LocaleCode) (Label, bool) {
	for _, l := range t.Labels {
		if l.Locale == locale {
			return l, true
		}
	}
	return Label{}, false
}

// Description returns the description for the locale, if present.
func (t *ThingObject) Description(locale LocaleCode) (Description, bool) {
	for _, d := range t.Descriptions {
		if d.Locale == locale {
			return d, true
		}
	}
	return Description{}, false
}

// AddDataProperty appends a literal. For the reserved source-system
// and source-reference properties the (property, locale) slot is
// unique, so an existing entry is replaced instead.
func (t *ThingObject) AddDataProperty(p DataProperty) error {
	if p.DataType != "" && !CheckDataPropertyRange(p.DataType, p.Value) {
		return validationErrorf("value %q is not in the range of %s", p.Value, p.DataType)
	}
	if t.DataProperties == nil {
		t.DataProperties = DataPropertyMap{}
	}
	if p.Property == PropSourceSystem || p.Property == PropSourceReferenceID {
		props := t.DataProperties[p.Property]
		for i, existing := range props {
			if existing.Locale == p.Locale {
				props[i] = p
				t.DataProperties[p.Property] = props
				t.markMutated()
				return nil
			}
		}
	}
	t.DataProperties[p.Property] = append(t.DataProperties[p.Property], p)
	t.markMutated()
	return nil
}

// AddRelationTarget appends a target to the outgoing side of the
// relation, creating the relation entry on first use.
func (t *ThingObject) AddRelationTarget(relation OntologyPropertyReference, target string) {
	if t.ObjectProperties == nil {
		t.ObjectProperties = ObjectPropertyMap{}
	}
	rel, ok := t.ObjectProperties[relation]
	if !ok {
		rel = NewObjectProperty(relation)
	}
	rel.Outgoing = append(rel.Outgoing, target)
	t.ObjectProperties[relation] = rel
	t.markMutated()
}

// firstLiteral returns the first literal value under the property.
func (t *ThingObject) firstLiteral(ref OntologyPropertyReference) string {
	if props, ok := t.DataProperties[ref]; ok && len(props) > 0 {
		return props[0].Value
	}
	return ""
}

// SourceSystem returns the external source system, if set.
func (t *ThingObject) SourceSystem() string {
	return t.firstLiteral(PropSourceSystem)
}

// SourceReferenceID returns the external source reference id, if set.
func (t *ThingObject) SourceReferenceID() string {
	return t.firstLiteral(PropSourceReferenceID)
}

// SetSourceSystem sets the external source system literal.
func (t *ThingObject) SetSourceSystem(system string) {
	_ = t.AddDataProperty(DataProperty{Value: system, Property: PropSourceSystem, Locale: EnUS})
}

// SetSourceReferenceID sets the external source reference id literal.
func (t *ThingObject) SetSourceReferenceID(id string) {
	_ = t.AddDataProperty(DataProperty{Value: id, Property: PropSourceReferenceID, Locale: EnUS})
}

// Targets returns the entity's active index targets.
func (t *ThingObject) Targets() []IndexTarget {
	var out []IndexTarget
	if t.UseForNEL {
		out = append(out, TargetNEL)
	}
	if t.UseVectorIndex {
		out = append(out, TargetVectorSearchWord)
	}
	if t.UseVectorIndexDocument {
		out = append(out, TargetVectorSearchDocument)
	}
	if t.UseFullTextIndex {
		out = append(out, TargetElasticSearch)
	}
	return out
}

// SetTargets replaces the index-target flags from a target list.
func (t *ThingObject) SetTargets(targets []IndexTarget) {
	t.UseForNEL = false
	t.UseVectorIndex = false
	t.UseVectorIndexDocument = false
	t.UseFullTextIndex = false
	for _, tgt := range targets {
		switch tgt {
		case TargetNEL:
			t.UseForNEL = true
		case TargetVectorSearchWord:
			t.UseVectorIndex = true
		case TargetVectorSearchDocument:
			t.UseVectorIndexDocument = true
		case TargetElasticSearch:
			t.UseFullTextIndex = true
		}
	}
}

// Clone returns a deep copy of the entity.
func (t *ThingObject) Clone() *ThingObject {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Labels = append([]Label(nil), t.Labels...)
	cp.Aliases = append([]Label(nil), t.Aliases...)
	cp.Descriptions = append([]Description(nil), t.Descriptions...)
	cp.GroupIDs = append([]string(nil), t.GroupIDs...)
	cp.OntologyTypes = append([]string(nil), t.OntologyTypes...)
	cp.DataProperties = t.DataProperties.Clone()
	cp.ObjectProperties = t.ObjectProperties.Clone()
	return &cp
}
