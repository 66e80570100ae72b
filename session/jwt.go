// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// TokenClaims are the claims the SDK reads out of a platform token.
//
// Tokens are decoded WITHOUT signature verification: the client is
// not a trust boundary, it only needs the expiry for refresh
// scheduling and the tenant/user pair for the stable session id.
// The backend verifies signatures on every request.
type TokenClaims struct {
	ExpiresAt      time.Time
	TenantID       string
	ExternalUserID string
	Subject        string
	Roles          []string
}

// DecodeClaims extracts the claims from an access token.
func DecodeClaims(token string) (TokenClaims, error) {
	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return TokenClaims{}, apierrors.Wrap(
			apierrors.Validation("token is not a decodable JWT"), err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return TokenClaims{}, apierrors.Validation("token carries no claim map")
	}

	out := TokenClaims{}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	out.TenantID = stringClaim(claims, "tenant")
	out.ExternalUserID = stringClaim(claims, "external-user-id")
	if out.ExternalUserID == "" {
		out.ExternalUserID = out.Subject
	}
	if raw, ok := claims["roles"]; ok {
		switch v := raw.(type) {
		case string:
			out.Roles = []string{v}
		case []any:
			for _, r := range v {
				if s, ok := r.(string); ok {
					out.Roles = append(out.Roles, s)
				}
			}
		}
	}
	return out, nil
}

// stringClaim reads an optional string claim.
func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
