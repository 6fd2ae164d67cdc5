// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package identity

import (
	"context"
	"sync"
)

// FakeSource is an in-memory Source for tests and local development.
// SignIn and SignOutLocal drive the session-change listeners the way the
// real provider's notifications would.
type FakeSource struct {
	mu        sync.Mutex
	current   *Principal
	claims    map[string]any
	token     string
	tokenErr  error
	listeners map[int]func(*Principal)
	nextID    int

	signOutCalls int
}

// NewFakeSource creates a signed-out fake source.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		listeners: make(map[int]func(*Principal)),
		token:     "fake-token",
	}
}

// SignIn sets the current principal and claims and notifies listeners.
func (f *FakeSource) SignIn(p *Principal, claims map[string]any) {
	f.mu.Lock()
	f.current = p
	f.claims = claims
	fns := f.listenerList()
	f.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// SignOutLocal clears the current principal and notifies listeners, as the
// provider's own sign-out notification would.
func (f *FakeSource) SignOutLocal() {
	f.mu.Lock()
	f.current = nil
	f.claims = nil
	fns := f.listenerList()
	f.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}
}

// SetTokenError makes subsequent Token and TokenClaims calls fail with err.
func (f *FakeSource) SetTokenError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenErr = err
}

// OnSessionChange registers fn and invokes it immediately with the current
// principal, matching the provider contract.
func (f *FakeSource) OnSessionChange(fn func(p *Principal)) (cancel func()) {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	current := f.current
	f.mu.Unlock()

	fn(current)

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Token returns the fake token.
func (f *FakeSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	if f.current == nil {
		return "", ErrNoSession
	}
	return f.token, nil
}

// TokenClaims returns the claims set by the last SignIn.
func (f *FakeSource) TokenClaims(ctx context.Context) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	if f.current == nil {
		return nil, ErrNoSession
	}
	out := make(map[string]any, len(f.claims))
	for k, v := range f.claims {
		out[k] = v
	}
	return out, nil
}

// SignOutCalls reports how many times SignOut has been invoked.
func (f *FakeSource) SignOutCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signOutCalls
}

// SignOut records the call and notifies listeners of the sign-out.
func (f *FakeSource) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.signOutCalls++
	f.current = nil
	f.claims = nil
	fns := f.listenerList()
	f.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}
	return nil
}

// listenerList snapshots the registered listeners. Caller holds f.mu.
func (f *FakeSource) listenerList() []func(*Principal) {
	fns := make([]func(*Principal), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	return fns
}
