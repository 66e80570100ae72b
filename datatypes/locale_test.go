// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIsSupportedLocale verifies the split between fully supported and
// input-only locales.
func TestIsSupportedLocale(t *testing.T) {
	for _, l := range []LocaleCode{EnUS, JaJP, DeDE, BgBG, ItIT} {
		assert.True(t, IsSupportedLocale(l), "locale %s", l)
	}
	for _, l := range []LocaleCode{EnGB, FrFR, EsES, "xx_XX", ""} {
		assert.False(t, IsSupportedLocale(l), "locale %s", l)
	}
}

// TestLanguageForLocale verifies the locale-to-language table,
// including the input-only locales that still map to a language.
func TestLanguageForLocale(t *testing.T) {
	cases := []struct {
		locale LocaleCode
		lang   LanguageCode
	}{
		{EnUS, LangEN},
		{JaJP, LangJA},
		{DeDE, LangDE},
		{BgBG, LangBG},
		{ItIT, LangIT},
		{EnGB, LangEN},
		{FrFR, "fr"},
		{EsES, "es"},
	}
	for _, tc := range cases {
		lang, ok := LanguageForLocale(tc.locale)
		assert.True(t, ok, "locale %s", tc.locale)
		assert.Equal(t, tc.lang, lang, "locale %s", tc.locale)
	}

	_, ok := LanguageForLocale("xx_XX")
	assert.False(t, ok)
}

// TestLocaleForLanguage verifies the reverse table only covers the
// fully supported languages.
func TestLocaleForLanguage(t *testing.T) {
	loc, ok := LocaleForLanguage(LangEN)
	assert.True(t, ok)
	assert.Equal(t, EnUS, loc)

	loc, ok = LocaleForLanguage(LangJA)
	assert.True(t, ok)
	assert.Equal(t, JaJP, loc)

	_, ok = LocaleForLanguage("fr")
	assert.False(t, ok)
}
