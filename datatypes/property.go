// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// DataProperty is a scalar attribute (a literal) of an entity. The
// optional DataType narrows the value to an XSD primitive type; an
// empty DataType means "untyped string".
type DataProperty struct {
	Value    string
	Property OntologyPropertyReference
	Locale   LocaleCode
	DataType XSDType
}

// NewDataProperty builds an untyped literal.
func NewDataProperty(value string, prop OntologyPropertyReference, locale LocaleCode) DataProperty {
	return DataProperty{Value: value, Property: prop, Locale: locale}
}

// ValidRange reports whether the value is well-formed for the declared
// data type. Untyped literals always pass.
func (p DataProperty) ValidRange() bool {
	if p.DataType == "" {
		return true
	}
	return CheckDataPropertyRange(p.DataType, p.Value)
}

// ObjectProperty is a relation of an entity. Incoming and Outgoing
// hold entity URIs only; entities are never embedded, which keeps the
// graph model cycle-free on the client. An outgoing element may also
// be a source reference id when it points at an entity that has not
// been assigned a URI yet (bulk import).
type ObjectProperty struct {
	Relation OntologyPropertyReference
	Incoming []string
	Outgoing []string
}

// NewObjectProperty builds an empty relation.
func NewObjectProperty(relation OntologyPropertyReference) ObjectProperty {
	return ObjectProperty{Relation: relation}
}

// RelationTarget resolves a ThingObject to the string form used inside
// Incoming/Outgoing: its URI when assigned, otherwise its source
// reference id. Client-local entities without either resolve to "".
func RelationTarget(t *ThingObject) string {
	if t == nil {
		return ""
	}
	if t.URI != "" {
		return t.URI
	}
	return t.SourceReferenceID()
}

// DataPropertyMap groups literals by property reference.
type DataPropertyMap map[OntologyPropertyReference][]DataProperty

// ObjectPropertyMap groups relations by property reference.
type ObjectPropertyMap map[OntologyPropertyReference]ObjectProperty

// Clone returns a deep copy.
func (m DataPropertyMap) Clone() DataPropertyMap {
	if m == nil {
		return nil
	}
	out := make(DataPropertyMap, len(m))
	for ref, props := range m {
		cp := make([]DataProperty, len(props))
		copy(cp, props)
		out[ref] = cp
	}
	return out
}

// Clone returns a deep copy.
func (m ObjectPropertyMap) Clone() ObjectPropertyMap {
	if m == nil {
		return nil
	}
	out := make(ObjectPropertyMap, len(m))
	for ref, rel := range m {
		cp := ObjectProperty{Relation: rel.Relation}
		cp.Incoming = append(cp.Incoming, rel.Incoming...)
		cp.Outgoing = append(cp.Outgoing, rel.Outgoing...)
		out[ref] = cp
	}
	return out
}
