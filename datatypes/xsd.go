// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// XSDType is an XSD primitive-type IRI used to type data-property
// values on the wire.
type XSDType string

const xsdNS = "http://www.w3.org/2001/XMLSchema#"

// The recognized XSD primitive-type space.
const (
	XSDString             XSDType = xsdNS + "string"
	XSDBoolean            XSDType = xsdNS + "boolean"
	XSDDecimal            XSDType = xsdNS + "decimal"
	XSDInteger            XSDType = xsdNS + "integer"
	XSDFloat              XSDType = xsdNS + "float"
	XSDDouble             XSDType = xsdNS + "double"
	XSDDate               XSDType = xsdNS + "date"
	XSDTime               XSDType = xsdNS + "time"
	XSDDateTime           XSDType = xsdNS + "dateTime"
	XSDDateTimeStamp      XSDType = xsdNS + "dateTimeStamp"
	XSDGYear              XSDType = xsdNS + "gYear"
	XSDGMonth             XSDType = xsdNS + "gMonth"
	XSDGDay               XSDType = xsdNS + "gDay"
	XSDGYearMonth         XSDType = xsdNS + "gYearMonth"
	XSDGMonthDay          XSDType = xsdNS + "gMonthDay"
	XSDDuration           XSDType = xsdNS + "duration"
	XSDYearMonthDuration  XSDType = xsdNS + "yearMonthDuration"
	XSDDayTimeDuration    XSDType = xsdNS + "dayTimeDuration"
	XSDByte               XSDType = xsdNS + "byte"
	XSDShort              XSDType = xsdNS + "short"
	XSDInt                XSDType = xsdNS + "int"
	XSDLong               XSDType = xsdNS + "long"
	XSDUnsignedByte       XSDType = xsdNS + "unsignedByte"
	XSDUnsignedShort      XSDType = xsdNS + "unsignedShort"
	XSDUnsignedInt        XSDType = xsdNS + "unsignedInt"
	XSDUnsignedLong       XSDType = xsdNS + "unsignedLong"
	XSDPositiveInteger    XSDType = xsdNS + "positiveInteger"
	XSDNonNegativeInteger XSDType = xsdNS + "nonNegativeInteger"
	XSDNegativeInteger    XSDType = xsdNS + "negativeInteger"
	XSDNonPositiveInteger XSDType = xsdNS + "nonPositiveInteger"
	XSDHexBinary          XSDType = xsdNS + "hexBinary"
	XSDBase64Binary       XSDType = xsdNS + "base64Binary"
	XSDAnyURI             XSDType = xsdNS + "anyURI"
	XSDLanguage           XSDType = xsdNS + "language"
	XSDNormalizedString   XSDType = xsdNS + "normalizedString"
	XSDToken              XSDType = xsdNS + "token"
)

// xsdTypes is the registry of recognized type IRIs.
var xsdTypes = map[XSDType]struct{}{
	XSDString: {}, XSDBoolean: {}, XSDDecimal: {}, XSDInteger: {},
	XSDFloat: {}, XSDDouble: {}, XSDDate: {}, XSDTime: {},
	XSDDateTime: {}, XSDDateTimeStamp: {}, XSDGYear: {}, XSDGMonth: {},
	XSDGDay: {}, XSDGYearMonth: {}, XSDGMonthDay: {}, XSDDuration: {},
	XSDYearMonthDuration: {}, XSDDayTimeDuration: {}, XSDByte: {},
	XSDShort: {}, XSDInt: {}, XSDLong: {}, XSDUnsignedByte: {},
	XSDUnsignedShort: {}, XSDUnsignedInt: {}, XSDUnsignedLong: {},
	XSDPositiveInteger: {}, XSDNonNegativeInteger: {},
	XSDNegativeInteger: {}, XSDNonPositiveInteger: {},
	XSDHexBinary: {}, XSDBase64Binary: {}, XSDAnyURI: {},
	XSDLanguage: {}, XSDNormalizedString: {}, XSDToken: {},
}

// ParseXSDType validates a type IRI against the registry. Unknown
// IRIs fail with a validation error.
func ParseXSDType(iri string) (XSDType, error) {
	t := XSDType(iri)
	if _, ok := xsdTypes[t]; !ok {
		return "", apierrors.Validation("unknown XSD data type %q", iri)
	}
	return t, nil
}

// IsKnownXSDType reports whether the IRI is in the recognized space.
func IsKnownXSDType(t XSDType) bool {
	_, ok := xsdTypes[t]
	return ok
}

// CheckDataPropertyRange reports whether value is well-formed for the
// declared XSD type. Types outside the registry pass permissively:
// the backend, not the client, is the authority for extension types.
func CheckDataPropertyRange(t XSDType, value string) bool {
	switch t {
	case XSDString, XSDNormalizedString, XSDToken, XSDLanguage:
		return true
	case XSDBoolean:
		return value == "true" || value == "false" || value == "0" || value == "1"
	case XSDDecimal, XSDFloat, XSDDouble:
		_, err := strconv.ParseFloat(value, 64)
		return err == nil
	case XSDInteger, XSDLong, XSDInt, XSDShort, XSDByte:
		_, err := strconv.ParseInt(value, 10, 64)
		return err == nil
	case XSDUnsignedLong, XSDUnsignedInt, XSDUnsignedShort, XSDUnsignedByte,
		XSDNonNegativeInteger:
		_, err := strconv.ParseUint(value, 10, 64)
		return err == nil
	case XSDPositiveInteger:
		v, err := strconv.ParseUint(value, 10, 64)
		return err == nil && v > 0
	case XSDNegativeInteger:
		v, err := strconv.ParseInt(value, 10, 64)
		return err == nil && v < 0
	case XSDNonPositiveInteger:
		v, err := strconv.ParseInt(value, 10, 64)
		return err == nil && v <= 0
	case XSDDate:
		return strfmt.IsDate(value)
	case XSDDateTime, XSDDateTimeStamp:
		return strfmt.IsDateTime(value)
	case XSDDuration, XSDYearMonthDuration, XSDDayTimeDuration:
		return strings.HasPrefix(value, "P") || strings.HasPrefix(value, "-P")
	case XSDAnyURI:
		_, err := url.Parse(value)
		return err == nil
	case XSDHexBinary:
		if len(value)%2 != 0 {
			return false
		}
		for _, r := range value {
			if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
				return false
			}
		}
		return true
	default:
		// Permissive pass-through for types the registry does not
		// model precisely (gYear and friends, base64Binary) and for
		// unrecognized extension types.
		return true
	}
}
