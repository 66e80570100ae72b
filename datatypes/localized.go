// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// LocalizedContent is the shared surface of Label and Description.
type LocalizedContent interface {
	ContentValue() string
	ContentLocale() LocaleCode
}

// Label is a localized name for an entity. For each locale an entity
// has at most one main label; every other label for that locale is an
// alias (IsMain false).
type Label struct {
	Value  string     `json:"value"`
	Locale LocaleCode `json:"locale"`
	IsMain bool       `json:"isMain"`
}

// NewLabel builds a main label.
func NewLabel(value string, locale LocaleCode) Label {
	return Label{Value: value, Locale: locale, IsMain: true}
}

// NewAlias builds an alias label.
func NewAlias(value string, locale LocaleCode) Label {
	return Label{Value: value, Locale: locale, IsMain: false}
}

// ContentValue implements LocalizedContent.
func (l Label) ContentValue() string { return l.Value }

// ContentLocale implements LocalizedContent.
func (l Label) ContentLocale() LocaleCode { return l.Locale }

// Description is a localized free-text description of an entity.
type Description struct {
	Text   string     `json:"description"`
	Locale LocaleCode `json:"locale"`
}

// NewDescription builds a description.
func NewDescription(text string, locale LocaleCode) Description {
	return Description{Text: text, Locale: locale}
}

// ContentValue implements LocalizedContent.
func (d Description) ContentValue() string { return d.Text }

// ContentLocale implements LocalizedContent.
func (d Description) ContentLocale() LocaleCode { return d.Locale }
