// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session manages authentication sessions against the
// knowledge platform: token storage, expiry tracking, and refresh
// gating.
//
// Three session kinds exist, ordered by recoverability:
//
//   - Permanent: holds the tenant API key and external user id. Can
//     always re-authenticate from scratch when both the access and
//     refresh tokens are rejected.
//   - Refreshable: holds a refresh token but no credentials. Usable
//     until the refresh token expires.
//   - Timed: holds an access token only. Expires with it.
//
// Sessions are registered with the process-wide TokenManager
// (see Manager). The manager serializes token refresh per session:
// under N concurrent callers exactly one refresh request is sent.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Kind is the session variant.
type Kind int

const (
	KindTimed Kind = iota
	KindRefreshable
	KindPermanent
)

// String returns the variant name.
func (k Kind) String() string {
	switch k {
	case KindPermanent:
		return "permanent"
	case KindRefreshable:
		return "refreshable"
	default:
		return "timed"
	}
}

// Session is an authenticated session. Implementations are safe for
// concurrent use; token reads and updates are atomic.
type Session interface {
	// ID is the stable internal id derived from the token's tenant
	// and external-user claims. It survives token refresh.
	ID() string

	Kind() Kind

	AccessToken() string
	RefreshToken() string

	// ExpiresAt is the access token's exp claim (UTC).
	ExpiresAt() time.Time

	// ExpiresIn is the time remaining on the access token. Negative
	// once the token has expired.
	ExpiresIn() time.Duration

	// Refreshable reports whether the session can outlive its access
	// token (every kind except Timed).
	Refreshable() bool

	// TenantID and ExternalUserID are decoded from the token claims.
	TenantID() string
	ExternalUserID() string

	// Update atomically replaces the tokens after a refresh. An empty
	// refresh token keeps the previous one.
	Update(accessToken, refreshToken string) error
}

// baseSession carries the shared state of all variants.
type baseSession struct {
	mu             sync.RWMutex
	id             string
	accessToken    string
	refreshToken   string
	expiresAt      time.Time
	tenantID       string
	externalUserID string
}

func (s *baseSession) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *baseSession) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *baseSession) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

func (s *baseSession) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *baseSession) ExpiresIn() time.Duration {
	return time.Until(s.ExpiresAt())
}

func (s *baseSession) TenantID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tenantID
}

func (s *baseSession) ExternalUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.externalUserID
}

// Update atomically replaces the tokens. The session id is preserved:
// it is derived from the tenant/user identity, not the raw token.
func (s *baseSession) Update(accessToken, refreshToken string) error {
	claims, err := DecodeClaims(accessToken)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = accessToken
	if refreshToken != "" {
		s.refreshToken = refreshToken
	}
	s.expiresAt = claims.ExpiresAt
	return nil
}

// PermanentSession can re-authenticate from its stored credentials.
type PermanentSession struct {
	baseSession
	tenantAPIKey string
}

func (s *PermanentSession) Kind() Kind        { return KindPermanent }
func (s *PermanentSession) Refreshable() bool { return true }

// TenantAPIKey returns the stored tenant API key.
func (s *PermanentSession) TenantAPIKey() string { return s.tenantAPIKey }

// RefreshableSession can refresh until its refresh token expires.
type RefreshableSession struct {
	baseSession
}

func (s *RefreshableSession) Kind() Kind        { return KindRefreshable }
func (s *RefreshableSession) Refreshable() bool { return true }

// TimedSession expires with its access token.
type TimedSession struct {
	baseSession
}

func (s *TimedSession) Kind() Kind        { return KindTimed }
func (s *TimedSession) Refreshable() bool { return false }

// sessionID derives the stable internal id. Identity-bearing tokens
// hash their (tenant, external user) pair; anonymous tokens fall back
// to hashing the raw token.
func sessionID(claims TokenClaims, rawToken string) string {
	var sum [32]byte
	if claims.TenantID != "" || claims.ExternalUserID != "" {
		sum = sha256.Sum256([]byte(claims.TenantID + "/" + claims.ExternalUserID))
	} else {
		sum = sha256.Sum256([]byte(rawToken))
	}
	return hex.EncodeToString(sum[:16])
}

// newSession builds the right variant for the supplied material.
func newSession(accessToken, refreshToken, tenantAPIKey, externalUserID string) (Session, error) {
	claims, err := DecodeClaims(accessToken)
	if err != nil {
		return nil, err
	}
	base := baseSession{
		id:             sessionID(claims, accessToken),
		accessToken:    accessToken,
		refreshToken:   refreshToken,
		expiresAt:      claims.ExpiresAt,
		tenantID:       claims.TenantID,
		externalUserID: claims.ExternalUserID,
	}
	if externalUserID != "" {
		base.externalUserID = externalUserID
	}
	switch {
	case tenantAPIKey != "" && base.externalUserID != "":
		return &PermanentSession{baseSession: base, tenantAPIKey: tenantAPIKey}, nil
	case refreshToken != "":
		return &RefreshableSession{baseSession: base}, nil
	default:
		return &TimedSession{baseSession: base}, nil
	}
}
