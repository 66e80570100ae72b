// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// LocaleCode is a language+country tag of the form <lang>_<COUNTRY>,
// for example "en_US". The backend keys localized content by locale.
type LocaleCode string

// LanguageCode is a bare ISO 639-1 language tag, for example "en".
// Semantic-search endpoints key by language rather than locale.
type LanguageCode string

// Locales with full platform support. Additional locales may appear
// on input (imported content keeps whatever locale it was written in)
// but only these are accepted for search and NEL.
const (
	EnUS LocaleCode = "en_US"
	JaJP LocaleCode = "ja_JP"
	DeDE LocaleCode = "de_DE"
	BgBG LocaleCode = "bg_BG"
	ItIT LocaleCode = "it_IT"

	// Input-only locales: accepted on entities, not searchable.
	EnGB LocaleCode = "en_GB"
	FrFR LocaleCode = "fr_FR"
	EsES LocaleCode = "es_ES"
)

// Supported language codes, matching the supported locales above.
const (
	LangEN LanguageCode = "en"
	LangJA LanguageCode = "ja"
	LangDE LanguageCode = "de"
	LangBG LanguageCode = "bg"
	LangIT LanguageCode = "it"
)

// localeToLanguage and languageToLocale are the two fixed mapping
// tables between the tag forms. Input-only locales map to their
// language but have no reverse mapping.
var localeToLanguage = map[LocaleCode]LanguageCode{
	EnUS: LangEN,
	JaJP: LangJA,
	DeDE: LangDE,
	BgBG: LangBG,
	ItIT: LangIT,
	EnGB: LangEN,
	FrFR: "fr",
	EsES: "es",
}

var languageToLocale = map[LanguageCode]LocaleCode{
	LangEN: EnUS,
	LangJA: JaJP,
	LangDE: DeDE,
	LangBG: BgBG,
	LangIT: ItIT,
}

// IsSupportedLocale reports whether the locale has full platform
// support (search, NEL, vector indexing).
func IsSupportedLocale(l LocaleCode) bool {
	switch l {
	case EnUS, JaJP, DeDE, BgBG, ItIT:
		return true
	}
	return false
}

// LanguageForLocale returns the bare language tag for a locale.
// The second result is false for locales outside the mapping table.
func LanguageForLocale(l LocaleCode) (LanguageCode, bool) {
	lang, ok := localeToLanguage[l]
	return lang, ok
}

// LocaleForLanguage returns the canonical locale for a language tag.
// The second result is false for languages outside the mapping table.
func LocaleForLanguage(l LanguageCode) (LocaleCode, bool) {
	loc, ok := languageToLocale[l]
	return loc, ok
}
