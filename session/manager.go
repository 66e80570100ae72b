// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// RefreshFunc exchanges a refresh token for a new token pair. It is
// supplied by the transport so the manager stays free of HTTP.
type RefreshFunc func(ctx context.Context, refreshToken string) (accessToken, refreshToken2 string, err error)

// LoginFunc authenticates from scratch with tenant credentials. Used
// as the fallback for permanent sessions whose refresh was rejected.
type LoginFunc func(ctx context.Context, tenantAPIKey, externalUserID string) (accessToken, refreshToken string, err error)

// TokenManager is the process-wide session registry. Safe for
// concurrent use.
type TokenManager struct {
	mu       sync.RWMutex
	sessions map[string]Session

	// refreshGroup serializes refresh per session id: concurrent
	// callers share one in-flight refresh instead of stampeding the
	// auth endpoint.
	refreshGroup singleflight.Group

	logger *slog.Logger
}

// refreshTimeout bounds a detached refresh flight that no caller is
// waiting on anymore.
const refreshTimeout = 30 * time.Second

var (
	managerOnce sync.Once
	manager     *TokenManager
)

// Manager returns the process-wide token manager.
func Manager() *TokenManager {
	managerOnce.Do(func() {
		manager = &TokenManager{
			sessions: map[string]Session{},
			logger:   slog.Default(),
		}
	})
	return manager
}

// Reset drops all sessions. Intended for test teardown.
func (m *TokenManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = map[string]Session{}
}

// AddSession registers a session built from the supplied material and
// returns it. The variant is chosen by what was supplied: credentials
// make a permanent session, a bare refresh token a refreshable one,
// an access token alone a timed one. Re-adding the same identity
// replaces the stored session.
func (m *TokenManager) AddSession(accessToken, refreshToken, tenantAPIKey, externalUserID string) (Session, error) {
	s, err := newSession(accessToken, refreshToken, tenantAPIKey, externalUserID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	m.logger.Debug("session registered",
		"session_id", s.ID(), "kind", s.Kind().String(), "expires_in", s.ExpiresIn())
	return s, nil
}

// GetSession returns the session for the id, if registered.
func (m *TokenManager) GetSession(id string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// HasSession reports whether the id is registered.
func (m *TokenManager) HasSession(id string) bool {
	_, ok := m.GetSession(id)
	return ok
}

// RemoveSession drops the session. Dropping an unknown id is a no-op.
func (m *TokenManager) RemoveSession(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Sessions returns a snapshot of all registered sessions.
func (m *TokenManager) Sessions() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}

// RefreshSession refreshes the session's tokens and returns the new
// access token.
//
// Concurrent callers on the same session id share a single refresh:
// the first caller performs it, the rest wait and reuse the result.
// A canceled caller detaches without mutating session state; the
// in-flight refresh completes for the others.
//
// When the refresh is rejected and the session is permanent, the
// manager falls back to re-authenticating with the stored tenant
// credentials. Any other kind surfaces an auth-expired failure.
func (m *TokenManager) RefreshSession(ctx context.Context, id string, refresh RefreshFunc, login LoginFunc) (string, error) {
	ch := m.refreshGroup.DoChan(id, func() (any, error) {
		// The flight must outlive the initiating caller so that
		// waiters with live contexts still get the new token.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.doRefresh(flightCtx, id, refresh, login)
	})
	select {
	case <-ctx.Done():
		return "", apierrors.Wrap(apierrors.New(apierrors.KindAuthExpired,
			"refresh canceled before completion"), ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// doRefresh is the single-flight body of RefreshSession.
func (m *TokenManager) doRefresh(ctx context.Context, id string, refresh RefreshFunc, login LoginFunc) (any, error) {
	s, ok := m.GetSession(id)
	if !ok {
		return nil, apierrors.Newf(apierrors.KindAuthExpired, "unknown session %s", id)
	}

	if s.RefreshToken() != "" && refresh != nil {
		access, newRefresh, err := refresh(ctx, s.RefreshToken())
		if err == nil {
			if err := s.Update(access, newRefresh); err != nil {
				return nil, err
			}
			m.logger.Debug("session refreshed", "session_id", id)
			return access, nil
		}
		m.logger.Warn("token refresh rejected",
			"session_id", id, "kind", s.Kind().String(), "error", err)
	}

	perm, isPermanent := s.(*PermanentSession)
	if !isPermanent || login == nil {
		return nil, apierrors.Newf(apierrors.KindAuthExpired,
			"session %s cannot be refreshed; log in again", id)
	}

	access, newRefresh, err := login(ctx, perm.TenantAPIKey(), perm.ExternalUserID())
	if err != nil {
		return nil, apierrors.Wrap(apierrors.Newf(apierrors.KindAuthExpired,
			"re-authentication of permanent session %s failed", id), err)
	}
	if err := s.Update(access, newRefresh); err != nil {
		return nil, err
	}
	m.logger.Info("permanent session re-authenticated", "session_id", id)
	return access, nil
}
