// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// PropertyKind distinguishes object properties (relations) from data
// properties (literals).
type PropertyKind string

const (
	PropertyKindObject PropertyKind = "objectProperty"
	PropertyKindData   PropertyKind = "dataProperty"
)

// OntologyContext is the metadata of an ontology context (a named
// staging area for class and property definitions).
type OntologyContext struct {
	Name     string  `json:"name"`
	IRI      string  `json:"iri,omitempty"`
	BaseURI  string  `json:"baseUri,omitempty"`
	Version  int     `json:"version,omitempty"`
	Orphaned bool    `json:"orphaned,omitempty"`
	Labels   []Label `json:"labels,omitempty"`
}

// OntologyClass is a class definition within a context.
type OntologyClass struct {
	Reference  OntologyClassReference
	SubclassOf *OntologyClassReference
	Labels     []Label
	Comments   []Description
}

// OntologyProperty is a property definition within a context.
//
// Ranges are IRIs: class IRIs for object properties, XSD type IRIs
// for data properties.
type OntologyProperty struct {
	Reference     OntologyPropertyReference
	Kind          PropertyKind
	Domains       []OntologyClassReference
	Ranges        []string
	Inverse       *OntologyPropertyReference
	SubpropertyOf *OntologyPropertyReference
	Labels        []Label
	Comments      []Description
}

// InflectionSetting controls how generated ontology names are cased
// when new classes or properties are created from labels.
type InflectionSetting struct {
	// CaseSensitive keeps the label casing; otherwise names are
	// normalized to lowerCamelCase for properties and UpperCamelCase
	// for classes.
	CaseSensitive bool `json:"caseSensitive"`
}

// wireOntologyClass is the JSON shape the ontology service returns.
type wireOntologyClass struct {
	IRI        string        `json:"iri"`
	SubclassOf string        `json:"subclassOf,omitempty"`
	Labels     []Label       `json:"labels,omitempty"`
	Comments   []Description `json:"comments,omitempty"`
}

// wireOntologyProperty is the JSON shape the ontology service returns.
type wireOntologyProperty struct {
	IRI           string        `json:"iri"`
	Kind          string        `json:"kind"`
	Domains       []string      `json:"domains,omitempty"`
	Ranges        []string      `json:"ranges,omitempty"`
	Inverse       string        `json:"inverse,omitempty"`
	SubpropertyOf string        `json:"subPropertyOf,omitempty"`
	Labels        []Label       `json:"labels,omitempty"`
	Comments      []Description `json:"comments,omitempty"`
}

// DecodeOntologyClass parses the service representation of a class.
func DecodeOntologyClass(data []byte) (*OntologyClass, error) {
	var w wireOntologyClass
	if err := unmarshalStrict(data, &w); err != nil {
		return nil, err
	}
	ref, err := ParseClassReference(w.IRI)
	if err != nil {
		return nil, err
	}
	cls := &OntologyClass{Reference: ref, Labels: w.Labels, Comments: w.Comments}
	if w.SubclassOf != "" {
		parent, err := ParseClassReference(w.SubclassOf)
		if err != nil {
			return nil, err
		}
		cls.SubclassOf = &parent
	}
	return cls, nil
}

// DecodeOntologyProperty parses the service representation of a
// property.
func DecodeOntologyProperty(data []byte) (*OntologyProperty, error) {
	var w wireOntologyProperty
	if err := unmarshalStrict(data, &w); err != nil {
		return nil, err
	}
	ref, err := ParsePropertyReference(w.IRI)
	if err != nil {
		return nil, err
	}
	prop := &OntologyProperty{
		Reference: ref,
		Kind:      PropertyKind(w.Kind),
		Ranges:    w.Ranges,
		Labels:    w.Labels,
		Comments:  w.Comments,
	}
	for _, d := range w.Domains {
		domain, err := ParseClassReference(d)
		if err != nil {
			return nil, err
		}
		prop.Domains = append(prop.Domains, domain)
	}
	if w.Inverse != "" {
		inv, err := ParsePropertyReference(w.Inverse)
		if err != nil {
			return nil, err
		}
		prop.Inverse = &inv
	}
	if w.SubpropertyOf != "" {
		super, err := ParsePropertyReference(w.SubpropertyOf)
		if err != nil {
			return nil, err
		}
		prop.SubpropertyOf = &super
	}
	return prop, nil
}
