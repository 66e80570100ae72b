// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// validate is the shared validator instance for request datatypes.
// Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("locale", validateLocale)
	_ = validate.RegisterValidation("iri", validateIRI)
}

// validateLocale accepts locales with full platform support.
func validateLocale(fl validator.FieldLevel) bool {
	return IsSupportedLocale(LocaleCode(fl.Field().String()))
}

// validateIRI accepts well-formed "scheme:context#name" strings.
func validateIRI(fl validator.FieldLevel) bool {
	_, _, _, err := splitIRI(fl.Field().String())
	return err == nil
}

// validationErrorf builds a datatypes-level validation failure.
func validationErrorf(format string, args ...any) error {
	return apierrors.Validation(format, args...)
}

// ValidateStruct runs the shared validator over a request DTO and
// converts validator failures into the SDK error envelope.
func ValidateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return apierrors.Wrap(apierrors.Validation("invalid request: %v", err), err)
	}
	return nil
}
