// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package importer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianKnowledge/datatypes"
)

// DiffType classifies a reconciliation difference.
type DiffType string

const (
	DiffLabelCount        DiffType = "LABEL_COUNT"
	DiffAliasCount        DiffType = "ALIAS_COUNT"
	DiffDescriptionCount  DiffType = "DESCRIPTION_COUNT"
	DiffLabelContent      DiffType = "LABEL_CONTENT"
	DiffAliasContent      DiffType = "ALIAS_CONTENT"
	DiffDescriptionText   DiffType = "DESCRIPTION_CONTENT"
	DiffIndexFlags        DiffType = "INDEX_FLAGS"
	DiffDataPropertyCount DiffType = "DATA_PROPERTY_COUNT"
	DiffDataPropertyValue DiffType = "DATA_PROPERTY_VALUE"
	DiffRelationTargets   DiffType = "RELATION_TARGETS"
)

// Difference is one divergence between the submitted entity and what
// the graph stored. Submitted and Graph hold the two observed values
// rendered as strings.
type Difference struct {
	Type      DiffType
	Submitted string
	Graph     string
}

func (d Difference) String() string {
	return fmt.Sprintf("%s: submitted=%q graph=%q", d.Type, d.Submitted, d.Graph)
}

// DiffOptions tunes the reconciliation.
type DiffOptions struct {
	// CompareRelations also checks outgoing object-property targets.
	// Off by default: the graph rewrites source-reference targets into
	// URIs during import, so a raw comparison is only meaningful when
	// the caller submitted URI targets.
	CompareRelations bool
}

// DiffThings compares a submitted entity with the version the graph
// returned for it. An empty result means the import was lossless.
func DiffThings(submitted, graph *datatypes.ThingObject, opts DiffOptions) []Difference {
	var out []Difference

	if len(submitted.Labels) != len(graph.Labels) {
		out = append(out, countDiff(DiffLabelCount, len(submitted.Labels), len(graph.Labels)))
	}
	if len(submitted.Aliases) != len(graph.Aliases) {
		out = append(out, countDiff(DiffAliasCount, len(submitted.Aliases), len(graph.Aliases)))
	}
	if len(submitted.Descriptions) != len(graph.Descriptions) {
		out = append(out, countDiff(DiffDescriptionCount, len(submitted.Descriptions), len(graph.Descriptions)))
	}

	out = append(out, diffLabels(DiffLabelContent, submitted.Labels, graph.Labels)...)
	out = append(out, diffLabels(DiffAliasContent, submitted.Aliases, graph.Aliases)...)
	out = append(out, diffDescriptions(submitted.Descriptions, graph.Descriptions)...)

	if sub, got := targetSet(submitted), targetSet(graph); sub != got {
		out = append(out, Difference{Type: DiffIndexFlags, Submitted: sub, Graph: got})
	}

	out = append(out, diffDataProperties(submitted, graph)...)

	if opts.CompareRelations {
		out = append(out, diffRelations(submitted, graph)...)
	}
	return out
}

func countDiff(typ DiffType, submitted, graph int) Difference {
	return Difference{
		Type:      typ,
		Submitted: fmt.Sprintf("%d", submitted),
		Graph:     fmt.Sprintf("%d", graph),
	}
}

// diffLabels compares label values per locale. Order on either side
// is irrelevant.
func diffLabels(typ DiffType, submitted, graph []datatypes.Label) []Difference {
	var out []Difference
	got := map[datatypes.LocaleCode][]string{}
	for _, l := range graph {
		got[l.Locale] = append(got[l.Locale], l.Value)
	}
	for _, l := range submitted {
		if !slices.Contains(got[l.Locale], l.Value) {
			out = append(out, Difference{
				Type:      typ,
				Submitted: fmt.Sprintf("%s@%s", l.Value, l.Locale),
				Graph:     strings.Join(got[l.Locale], ", "),
			})
		}
	}
	return out
}

func diffDescriptions(submitted, graph []datatypes.Description) []Difference {
	var out []Difference
	got := map[datatypes.LocaleCode]string{}
	for _, d := range graph {
		got[d.Locale] = d.Text
	}
	for _, d := range submitted {
		if got[d.Locale] != d.Text {
			out = append(out, Difference{
				Type:      DiffDescriptionText,
				Submitted: fmt.Sprintf("%s@%s", d.Text, d.Locale),
				Graph:     got[d.Locale],
			})
		}
	}
	return out
}

// targetSet renders the index flags in stable order.
func targetSet(t *datatypes.ThingObject) string {
	targets := t.Targets()
	names := make([]string, len(targets))
	for i, tgt := range targets {
		names[i] = string(tgt)
	}
	slices.Sort(names)
	return strings.Join(names, ",")
}

func diffDataProperties(submitted, graph *datatypes.ThingObject) []Difference {
	var out []Difference
	for ref, subProps := range submitted.DataProperties {
		gotProps := graph.DataProperties[ref]
		if len(subProps) != len(gotProps) {
			out = append(out, Difference{
				Type:      DiffDataPropertyCount,
				Submitted: fmt.Sprintf("%s: %d", ref.IRI(), len(subProps)),
				Graph:     fmt.Sprintf("%s: %d", ref.IRI(), len(gotProps)),
			})
		}
		gotValues := make([]string, 0, len(gotProps))
		for _, p := range gotProps {
			gotValues = append(gotValues, p.Value)
		}
		for _, p := range subProps {
			if !slices.Contains(gotValues, p.Value) {
				out = append(out, Difference{
					Type:      DiffDataPropertyValue,
					Submitted: fmt.Sprintf("%s=%s", ref.IRI(), p.Value),
					Graph:     strings.Join(gotValues, ", "),
				})
			}
		}
	}
	return out
}

func diffRelations(submitted, graph *datatypes.ThingObject) []Difference {
	var out []Difference
	for ref, subRel := range submitted.ObjectProperties {
		gotRel := graph.ObjectProperties[ref]
		sub := append([]string(nil), subRel.Outgoing...)
		got := append([]string(nil), gotRel.Outgoing...)
		slices.Sort(sub)
		slices.Sort(got)
		if strings.Join(sub, ",") != strings.Join(got, ",") {
			out = append(out, Difference{
				Type:      DiffRelationTargets,
				Submitted: fmt.Sprintf("%s -> %s", ref.IRI(), strings.Join(sub, ", ")),
				Graph:     fmt.Sprintf("%s -> %s", ref.IRI(), strings.Join(got, ", ")),
			})
		}
	}
	return out
}
