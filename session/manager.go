// Package session owns the live credential bundle of the signed-in user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"manualqa/internal"
)

// DefaultRefreshTimeout bounds one call to the identity provider
const DefaultRefreshTimeout = 20 * time.Second

// Manager holds the one live credential bundle. It is the only writer of the
// bundle and of its persisted copy.
type Manager struct {
	store    internal.CredentialStore
	provider internal.IdentityProvider

	mu      sync.RWMutex
	bundle  internal.Bundle
	profile *internal.UserProfile

	group          singleflight.Group
	refreshTimeout time.Duration
}

// Option configures a Manager
type Option func(*Manager)

// WithRefreshTimeout overrides DefaultRefreshTimeout
func WithRefreshTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.refreshTimeout = d
		}
	}
}

// NewManager creates a manager persisting through store and refreshing
// through provider. Call Load to restore a previous session.
func NewManager(store internal.CredentialStore, provider internal.IdentityProvider, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		provider:       provider,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load restores the bundle and profile from the credential store. Corrupt
// entries are discarded and the user is treated as signed out.
func (m *Manager) Load(ctx context.Context) error {
	var bundle internal.Bundle
	found, err := m.loadJSON(ctx, internal.KeyBundle, &bundle)
	if err != nil {
		return err
	}
	if !found || bundle.IsZero() {
		return nil
	}

	var profile internal.UserProfile
	hasProfile, err := m.loadJSON(ctx, internal.KeyProfile, &profile)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.bundle = bundle
	if hasProfile {
		m.profile = &profile
	}
	m.mu.Unlock()

	internal.LogDebug("Restored session (expires %s)", formatExpiry(bundle.Expiry))
	return nil
}

func (m *Manager) loadJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	raw, ok, err := m.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		internal.LogWarn("Discarding corrupt %s entry: %v", key, err)
		if rmErr := m.store.Remove(ctx, key); rmErr != nil {
			internal.LogWarn("Failed to remove corrupt %s entry: %v", key, rmErr)
		}
		return false, nil
	}
	return true, nil
}

// Current returns a copy of the live bundle, valid for one request
func (m *Manager) Current() (internal.Bundle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bundle.IsZero() {
		return internal.Bundle{}, false
	}
	return m.bundle, true
}

// Profile returns the signed-in user, if known
func (m *Manager) Profile() (internal.UserProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.profile == nil {
		return internal.UserProfile{}, false
	}
	return *m.profile, true
}

// Establish replaces the live bundle after a successful sign-in
func (m *Manager) Establish(ctx context.Context, bundle internal.Bundle, profile *internal.UserProfile) error {
	if bundle.IdentityToken == "" {
		return fmt.Errorf("establish session: %w", internal.NewValidationError("identityToken", "sign-in returned no identity token"))
	}

	if err := m.persist(ctx, internal.KeyBundle, bundle); err != nil {
		return err
	}
	if profile != nil {
		if err := m.persist(ctx, internal.KeyProfile, profile); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.bundle = bundle
	if profile != nil {
		p := *profile
		m.profile = &p
	}
	m.mu.Unlock()

	internal.LogInfo("Session established (expires %s)", formatExpiry(bundle.Expiry))
	return nil
}

// Clear drops the live bundle and its persisted copy
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.bundle = internal.Bundle{}
	m.profile = nil
	m.mu.Unlock()

	var errs []error
	for _, key := range []string{internal.KeyBundle, internal.KeyProfile} {
		if err := m.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// Refresh exchanges the refresh token for a new bundle. Concurrent callers
// share a single call to the identity provider and all observe its result.
// staleIdentityToken is the token the caller saw rejected; when the live
// bundle has already moved past it, the live bundle is returned as is.
//
// A rejected refresh token clears the session and every waiter receives an
// auth error wrapping ErrAuthRequired.
func (m *Manager) Refresh(ctx context.Context, staleIdentityToken string) (internal.Bundle, error) {
	m.mu.RLock()
	live := m.bundle
	m.mu.RUnlock()

	if live.IsZero() {
		return internal.Bundle{}, internal.NewAuthRequiredError("refresh requested without a session", nil)
	}
	if staleIdentityToken != "" && live.IdentityToken != staleIdentityToken {
		return live, nil
	}

	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		return m.doRefresh(ctx, staleIdentityToken)
	})

	select {
	case <-ctx.Done():
		return internal.Bundle{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return internal.Bundle{}, res.Err
		}
		return res.Val.(internal.Bundle), nil
	}
}

// doRefresh runs once per flight, detached from any single caller's
// cancellation.
func (m *Manager) doRefresh(parent context.Context, staleIdentityToken string) (internal.Bundle, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.refreshTimeout)
	defer cancel()

	m.mu.RLock()
	live := m.bundle
	m.mu.RUnlock()

	switch {
	case live.IsZero():
		return internal.Bundle{}, internal.NewAuthRequiredError("session cleared before refresh", nil)
	case staleIdentityToken != "" && live.IdentityToken != staleIdentityToken:
		return live, nil
	case live.RefreshToken == "":
		m.discard(ctx, "no refresh token")
		return internal.Bundle{}, internal.NewAuthRequiredError("session has no refresh token", nil)
	}

	internal.LogDebug("Refreshing credentials")
	next, err := m.provider.RefreshTokens(ctx, live.RefreshToken)
	if err != nil {
		ce := internal.AsClassified(err)
		if ce.Kind == internal.KindAuth || ce.Kind == internal.KindValidation {
			m.discard(ctx, ce.TechnicalMessage)
			return internal.Bundle{}, internal.NewAuthRequiredError("refresh rejected: "+ce.TechnicalMessage, err)
		}
		internal.LogWarn("Credential refresh failed, keeping session: %s", ce.TechnicalMessage)
		return internal.Bundle{}, ce
	}
	if next.IdentityToken == "" {
		internal.LogWarn("Credential refresh returned no identity token, keeping session")
		return internal.Bundle{}, internal.NewMalformedResponseError("auth.refresh", "refresh returned no identity token")
	}
	if next.RefreshToken == "" {
		next.RefreshToken = live.RefreshToken
	}

	m.mu.Lock()
	if m.bundle.RefreshToken != live.RefreshToken {
		// signed out or replaced while the refresh was in flight
		m.mu.Unlock()
		return internal.Bundle{}, internal.NewAuthRequiredError("session changed during refresh", nil)
	}
	m.bundle = next
	m.mu.Unlock()

	if err := m.persist(ctx, internal.KeyBundle, next); err != nil {
		internal.LogWarn("Refreshed credentials could not be persisted: %v", err)
	}
	internal.LogDebug("Credentials refreshed (expires %s)", formatExpiry(next.Expiry))
	return next, nil
}

func (m *Manager) discard(ctx context.Context, reason string) {
	internal.LogWarn("Refresh token rejected, signing out: %s", reason)
	if err := m.Clear(ctx); err != nil {
		internal.LogWarn("Failed to clear stored session: %v", err)
	}
}

func (m *Manager) persist(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := m.store.Set(ctx, key, string(raw)); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
