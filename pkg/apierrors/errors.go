// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package apierrors defines the error model shared by every service
// client in the knowledge SDK.
//
// Every operation either returns a typed value or fails with a
// *ServiceError carrying one of the kinds below. Callers match on
// kind with errors.Is and the exported sentinels:
//
//	if errors.Is(err, apierrors.ErrForbidden) {
//	    // caller lacks rights on the target entity
//	}
//
// Transient failures (network faults, 5xx, 429) are retried inside
// the transport; if retries are exhausted the last failure surfaces
// with KindTransient so callers can distinguish "service was down"
// from "request was wrong".
package apierrors

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure.
type Kind int

const (
	// KindGeneric is a non-success response that fits no other kind.
	KindGeneric Kind = iota

	// KindValidation is malformed input: a bad IRI, a missing required
	// field, or an impossible argument combination. Never retried and
	// never dispatched to the backend.
	KindValidation

	// KindAuthExpired means the token could not be refreshed or the
	// refresh token was rejected. The caller must log in again.
	KindAuthExpired

	// KindForbidden is a server 403.
	KindForbidden

	// KindNotFound is a server 404.
	KindNotFound

	// KindConflict is a server 409 (duplicate source reference or a
	// rule violation).
	KindConflict

	// KindTransient is a network fault, 5xx, or 429. Retryable.
	KindTransient

	// KindParse means the response body did not match the expected
	// schema.
	KindParse
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_failed"
	case KindAuthExpired:
		return "auth_expired"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindParse:
		return "parse_error"
	default:
		return "service_error"
	}
}

// Sentinel errors for kind matching with errors.Is. These carry no
// context of their own; the *ServiceError wrapping them does.
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrAuthExpired      = errors.New("authentication expired")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrTransient        = errors.New("transient service failure")
	ErrParse            = errors.New("response parse failure")
)

// sentinelFor maps a kind to its sentinel, or nil for KindGeneric.
func sentinelFor(k Kind) error {
	switch k {
	case KindValidation:
		return ErrValidationFailed
	case KindAuthExpired:
		return ErrAuthExpired
	case KindForbidden:
		return ErrForbidden
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindTransient:
		return ErrTransient
	case KindParse:
		return ErrParse
	}
	return nil
}

// ServiceError is the failure envelope for every SDK operation.
//
// Method, URL and StatusCode describe the request that failed. The
// response body is captured as a bounded snippet; request payloads are
// never stored — only a SHA-256 digest for log correlation.
type ServiceError struct {
	Kind Kind

	// Method and URL identify the HTTP request, when one was made.
	// Validation failures detected before dispatch leave both empty.
	Method string
	URL    string

	// StatusCode is the HTTP status, 0 when no response was received
	// (network fault, timeout, pre-dispatch validation).
	StatusCode int

	// Message is a short operator-facing description.
	Message string

	// Snippet is a bounded prefix of the server's response body.
	Snippet string

	// PayloadDigest is the hex SHA-256 of the request payload, empty
	// when the request had no body.
	PayloadDigest string

	// Params are the query parameters of the failed request.
	Params map[string]string

	cause error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s %s returned %d: %s",
			e.Kind, e.Method, e.URL, e.StatusCode, e.Message)
	}
	if e.URL != "" {
		return fmt.Sprintf("%s: %s %s: %s", e.Kind, e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// Is lets errors.Is match the kind sentinels without requiring the
// sentinel to be the wrapped cause.
func (e *ServiceError) Is(target error) bool {
	return target != nil && target == sentinelFor(e.Kind)
}

// Retryable reports whether the transport may retry the request.
func (e *ServiceError) Retryable() bool {
	return e.Kind == KindTransient
}

// IsTransient reports whether any error in the chain is a retryable
// service failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// New builds a ServiceError of the given kind.
func New(kind Kind, msg string) *ServiceError {
	return &ServiceError{Kind: kind, Message: msg}
}

// Newf builds a ServiceError of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *ServiceError {
	return &ServiceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a pre-dispatch validation failure.
func Validation(format string, args ...any) *ServiceError {
	return Newf(KindValidation, format, args...)
}

// Wrap attaches a cause to a ServiceError and returns it.
func Wrap(e *ServiceError, cause error) *ServiceError {
	e.cause = cause
	return e
}

// KindForStatus maps an HTTP status code to an error kind.
//
// 401 maps to KindAuthExpired because by the time a request carries a
// token the transport has already tried to refresh it; a 401 past that
// point means the session is unusable.
func KindForStatus(status int) Kind {
	switch {
	case status == 401:
		return KindAuthExpired
	case status == 403:
		return KindForbidden
	case status == 404:
		return KindNotFound
	case status == 409:
		return KindConflict
	case status == 429 || status >= 500:
		return KindTransient
	default:
		return KindGeneric
	}
}

// FromResponse builds the envelope for a non-success HTTP response.
func FromResponse(method, url string, status int, snippet string) *ServiceError {
	return &ServiceError{
		Kind:       KindForStatus(status),
		Method:     method,
		URL:        url,
		StatusCode: status,
		Message:    fmt.Sprintf("unexpected status %d", status),
		Snippet:    snippet,
	}
}
