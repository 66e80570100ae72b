// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the domain model of the knowledge-graph
// platform: ontology references, localized content, entities, and the
// wire codecs used by the service clients.
//
// The model is pure data. Nothing in this package performs I/O; the
// service packages under services/ serialize these types onto the
// platform's REST API.
package datatypes

import (
	"strings"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// An ontology reference is the triple (scheme, context, name) with the
// canonical IRI form "scheme:context#name". Class references name
// concept types; property references name data and object properties.
// The two are structurally identical but nominally distinct so that a
// class IRI cannot be passed where a property IRI is expected.

// OntologyClassReference identifies an ontology class (concept type).
type OntologyClassReference struct {
	Scheme  string
	Context string
	Name    string
}

// OntologyPropertyReference identifies an ontology property.
type OntologyPropertyReference struct {
	Scheme  string
	Context string
	Name    string
}

// IRI returns the canonical "scheme:context#name" form.
func (r OntologyClassReference) IRI() string {
	return r.Scheme + ":" + r.Context + "#" + r.Name
}

// String implements fmt.Stringer.
func (r OntologyClassReference) String() string { return r.IRI() }

// IsZero reports whether the reference is unset.
func (r OntologyClassReference) IsZero() bool {
	return r.Scheme == "" && r.Context == "" && r.Name == ""
}

// IRI returns the canonical "scheme:context#name" form.
func (r OntologyPropertyReference) IRI() string {
	return r.Scheme + ":" + r.Context + "#" + r.Name
}

// String implements fmt.Stringer.
func (r OntologyPropertyReference) String() string { return r.IRI() }

// IsZero reports whether the reference is unset.
func (r OntologyPropertyReference) IsZero() bool {
	return r.Scheme == "" && r.Context == "" && r.Name == ""
}

// splitIRI validates and splits "scheme:context#name".
//
// The accepted grammar requires a ':' and a '#' with the ':' strictly
// before the '#'. Anything else fails with a validation error; IRIs
// are never guessed at.
func splitIRI(iri string) (scheme, context, name string, err error) {
	colon := strings.Index(iri, ":")
	if colon < 0 {
		return "", "", "", apierrors.Validation("invalid IRI %q: missing ':' separator", iri)
	}
	hash := strings.Index(iri, "#")
	if hash < 0 {
		return "", "", "", apierrors.Validation("invalid IRI %q: missing '#' separator", iri)
	}
	if colon > hash {
		return "", "", "", apierrors.Validation("invalid IRI %q: ':' must precede '#'", iri)
	}
	return iri[:colon], iri[colon+1 : hash], iri[hash+1:], nil
}

// ParseClassReference parses "scheme:context#name" into a class
// reference. Fails with a validation error for malformed input.
func ParseClassReference(iri string) (OntologyClassReference, error) {
	scheme, context, name, err := splitIRI(iri)
	if err != nil {
		return OntologyClassReference{}, err
	}
	return OntologyClassReference{Scheme: scheme, Context: context, Name: name}, nil
}

// ParsePropertyReference parses "scheme:context#name" into a property
// reference. Fails with a validation error for malformed input.
func ParsePropertyReference(iri string) (OntologyPropertyReference, error) {
	scheme, context, name, err := splitIRI(iri)
	if err != nil {
		return OntologyPropertyReference{}, err
	}
	return OntologyPropertyReference{Scheme: scheme, Context: context, Name: name}, nil
}

// MustParseClassReference is ParseClassReference for known-good
// constants; it panics on malformed input.
func MustParseClassReference(iri string) OntologyClassReference {
	ref, err := ParseClassReference(iri)
	if err != nil {
		panic(err)
	}
	return ref
}

// MustParsePropertyReference is ParsePropertyReference for known-good
// constants; it panics on malformed input.
func MustParsePropertyReference(iri string) OntologyPropertyReference {
	ref, err := ParsePropertyReference(iri)
	if err != nil {
		panic(err)
	}
	return ref
}

// Well-known references from the platform core ontology.
var (
	// ThingClass is the root concept type.
	ThingClass = MustParseClassReference("wacom:core#Thing")

	// PropSourceSystem and PropSourceReferenceID carry the external
	// system/id pair preserved on imported entities. The pair makes
	// re-imports idempotent: the backend treats a duplicate
	// (sourceSystem, sourceReferenceId) within a tenant as the same
	// entity.
	PropSourceSystem      = MustParsePropertyReference("wacom:core#sourceSystem")
	PropSourceReferenceID = MustParsePropertyReference("wacom:core#sourceReferenceId")
)
