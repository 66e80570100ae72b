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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianKnowledge/pkg/apierrors"
)

// newTestManager builds an isolated manager so tests do not share the
// process-wide singleton.
func newTestManager() *TokenManager {
	return &TokenManager{sessions: map[string]Session{}, logger: slog.Default()}
}

// =============================================================================
// Registry
// =============================================================================

// TestManager_Registry verifies add, lookup, removal, and reset.
func TestManager_Registry(t *testing.T) {
	m := newTestManager()
	token := mintUserToken(t, "tenant-1", "user-1", time.Hour)

	s, err := m.AddSession(token, "", "", "")
	require.NoError(t, err)

	got, ok := m.GetSession(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.True(t, m.HasSession(s.ID()))
	assert.Len(t, m.Sessions(), 1)

	// Re-adding the same identity replaces, not duplicates.
	again, err := m.AddSession(mintUserToken(t, "tenant-1", "user-1", 2*time.Hour), "", "", "")
	require.NoError(t, err)
	assert.Equal(t, s.ID(), again.ID())
	assert.Len(t, m.Sessions(), 1)

	m.RemoveSession(s.ID())
	assert.False(t, m.HasSession(s.ID()))
	m.RemoveSession("unknown")

	_, err = m.AddSession(token, "", "", "")
	require.NoError(t, err)
	m.Reset()
	assert.Empty(t, m.Sessions())
}

// TestManager_Singleton verifies Manager returns one instance.
func TestManager_Singleton(t *testing.T) {
	assert.Same(t, Manager(), Manager())
}

// =============================================================================
// Refresh
// =============================================================================

// TestRefreshSession verifies a successful refresh swaps the stored
// tokens.
func TestRefreshSession(t *testing.T) {
	m := newTestManager()
	s, err := m.AddSession(mintUserToken(t, "tenant-1", "user-1", time.Minute), "refresh-old", "", "")
	require.NoError(t, err)

	newToken := mintUserToken(t, "tenant-1", "user-1", time.Hour)
	refresh := func(ctx context.Context, rt string) (string, string, error) {
		assert.Equal(t, "refresh-old", rt)
		return newToken, "refresh-new", nil
	}

	access, err := m.RefreshSession(context.Background(), s.ID(), refresh, nil)
	require.NoError(t, err)
	assert.Equal(t, newToken, access)
	assert.Equal(t, newToken, s.AccessToken())
	assert.Equal(t, "refresh-new", s.RefreshToken())
}

// TestRefreshSession_SingleFlight verifies concurrent callers share
// one refresh request.
func TestRefreshSession_SingleFlight(t *testing.T) {
	m := newTestManager()
	s, err := m.AddSession(mintUserToken(t, "tenant-1", "user-1", time.Minute), "refresh-1", "", "")
	require.NoError(t, err)

	var calls atomic.Int32
	newToken := mintUserToken(t, "tenant-1", "user-1", time.Hour)
	refresh := func(ctx context.Context, rt string) (string, string, error) {
		calls.Add(1)
		time.Sleep(100 * time.Millisecond)
		return newToken, "", nil
	}

	const workers = 10
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			_, errs[i] = m.RefreshSession(context.Background(), s.ID(), refresh, nil)
		}(i)
	}
	start.Done()
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), calls.Load())
}

// TestRefreshSession_PermanentFallback verifies a rejected refresh on
// a permanent session re-authenticates with the stored credentials.
func TestRefreshSession_PermanentFallback(t *testing.T) {
	m := newTestManager()
	s, err := m.AddSession(mintUserToken(t, "tenant-1", "user-1", time.Minute), "refresh-1", "api-key", "user-1")
	require.NoError(t, err)

	refresh := func(ctx context.Context, rt string) (string, string, error) {
		return "", "", apierrors.New(apierrors.KindAuthExpired, "refresh token rejected")
	}
	newToken := mintUserToken(t, "tenant-1", "user-1", time.Hour)
	login := func(ctx context.Context, apiKey, userID string) (string, string, error) {
		assert.Equal(t, "api-key", apiKey)
		assert.Equal(t, "user-1", userID)
		return newToken, "refresh-2", nil
	}

	access, err := m.RefreshSession(context.Background(), s.ID(), refresh, login)
	require.NoError(t, err)
	assert.Equal(t, newToken, access)
	assert.Equal(t, "refresh-2", s.RefreshToken())
}

// TestRefreshSession_TimedCannotRefresh verifies timed sessions fail
// with an auth-expired error instead of retrying.
func TestRefreshSession_TimedCannotRefresh(t *testing.T) {
	m := newTestManager()
	s, err := m.AddSession(mintUserToken(t, "tenant-1", "user-1", time.Minute), "", "", "")
	require.NoError(t, err)

	_, err = m.RefreshSession(context.Background(), s.ID(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrAuthExpired)
}

// TestRefreshSession_UnknownSession verifies an unregistered id fails
// with an auth-expired error.
func TestRefreshSession_UnknownSession(t *testing.T) {
	m := newTestManager()
	_, err := m.RefreshSession(context.Background(), "missing", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrAuthExpired)
}

// TestRefreshSession_CanceledCaller verifies a canceled caller
// detaches with an error while the in-flight refresh continues and
// delivers the new token to the remaining waiter. The refresh func
// honors its context, so the flight must not inherit the canceled
// caller's cancellation.
func TestRefreshSession_CanceledCaller(t *testing.T) {
	m := newTestManager()
	s, err := m.AddSession(mintUserToken(t, "tenant-1", "user-1", time.Minute), "refresh-1", "", "")
	require.NoError(t, err)

	started := make(chan struct{})
	var startedOnce sync.Once
	release := make(chan struct{})
	newToken := mintUserToken(t, "tenant-1", "user-1", time.Hour)
	refresh := func(ctx context.Context, rt string) (string, string, error) {
		startedOnce.Do(func() { close(started) })
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-release:
			return newToken, "", nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	initiator := make(chan error, 1)
	go func() {
		_, err := m.RefreshSession(ctx, s.ID(), refresh, nil)
		initiator <- err
	}()

	// Join the flight with a live context, then cancel the initiator.
	<-started
	type result struct {
		access string
		err    error
	}
	waiter := make(chan result, 1)
	go func() {
		access, err := m.RefreshSession(context.Background(), s.ID(), refresh, nil)
		waiter <- result{access, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	err = <-initiator
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrAuthExpired)

	close(release)
	res := <-waiter
	require.NoError(t, res.err)
	assert.Equal(t, newToken, res.access)
	assert.Equal(t, newToken, s.AccessToken())
}
