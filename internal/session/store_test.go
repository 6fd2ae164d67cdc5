// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lalaba-dev/opsgate/internal/identity"
	"github.com/lalaba-dev/opsgate/internal/profile"
	"github.com/lalaba-dev/opsgate/internal/role"
	"github.com/lalaba-dev/opsgate/internal/rolecache"
)

// gatedClaims wraps an identity source's claim reader so a test can hold a
// lookup open while a newer principal change races past it.
type gatedClaims struct {
	inner role.ClaimReader

	mu    sync.Mutex
	gates []*claimGate
}

type claimGate struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClaims) TokenClaims(ctx context.Context) (map[string]any, error) {
	g.mu.Lock()
	var gate *claimGate
	if len(g.gates) > 0 {
		gate = g.gates[0]
		g.gates = g.gates[1:]
	}
	g.mu.Unlock()

	if gate != nil {
		close(gate.entered)
		select {
		case <-gate.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.inner.TokenClaims(ctx)
}

// holdNext makes the next TokenClaims call block until release is called.
// entered is closed once that call is in flight.
func (g *gatedClaims) holdNext() (entered <-chan struct{}, release func()) {
	gate := &claimGate{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	g.mu.Lock()
	g.gates = append(g.gates, gate)
	g.mu.Unlock()
	return gate.entered, func() { close(gate.release) }
}

func startStore(t *testing.T, src identity.Source, resolver *role.Resolver, cache rolecache.Cache) *Store {
	t.Helper()
	st := NewStore(src, resolver, cache)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = st.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for the identity source's immediate first notification so tests
	// observe only the transitions they drive.
	deadline := time.After(2 * time.Second)
	for {
		st.mu.Lock()
		reported := st.snap.reported
		st.mu.Unlock()
		if reported {
			return st
		}
		select {
		case <-deadline:
			t.Fatal("identity source never reported")
		case <-time.After(time.Millisecond):
		}
	}
}

func waitFor(t *testing.T, st *Store, desc string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := st.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s; state=%s role=%q reason=%q",
				desc, snap.State, snap.Role, snap.FailureReason)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStoreStartupHintFromCache(t *testing.T) {
	cache := rolecache.NewMemoryCache()
	if err := cache.Store(context.Background(), role.RoleAdmin); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	src := identity.NewFakeSource()
	st := NewStore(src, role.NewResolver(src, nil), cache)

	snap := st.Snapshot()
	if snap.RoleHint != role.RoleAdmin {
		t.Fatalf("RoleHint = %q, want %q", snap.RoleHint, role.RoleAdmin)
	}
	if !snap.Loading() {
		t.Error("snapshot with cached hint and no identity report should be loading")
	}
	if snap.State != StateUnresolved {
		t.Errorf("State = %s, want %s", snap.State, StateUnresolved)
	}
}

func TestStoreResolvesRoleFromClaim(t *testing.T) {
	src := identity.NewFakeSource()
	cache := rolecache.NewMemoryCache()
	st := startStore(t, src, role.NewResolver(src, nil), cache)

	src.SignIn(&identity.Principal{ID: "u1", Email: "ops@lalaba.ph"}, map[string]any{"role": "admin"})

	snap := waitFor(t, st, "resolution", func(s Snapshot) bool { return s.State == StateResolved })
	if snap.Role != role.RoleAdmin {
		t.Errorf("Role = %q, want %q", snap.Role, role.RoleAdmin)
	}
	if snap.Loading() {
		t.Error("resolved snapshot should not be loading")
	}

	got, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("cache.Load: %v", err)
	}
	if got != role.RoleAdmin {
		t.Errorf("cached role = %q, want %q", got, role.RoleAdmin)
	}
}

func TestStoreFallsBackToProfile(t *testing.T) {
	src := identity.NewFakeSource()
	profiles := profile.NewMemoryStore()
	profiles.Put(&profile.Record{UID: "u2", Role: "rider"})
	st := startStore(t, src, role.NewResolver(src, profiles), rolecache.NewMemoryCache())

	src.SignIn(&identity.Principal{ID: "u2"}, map[string]any{})

	snap := waitFor(t, st, "resolution", func(s Snapshot) bool { return s.State == StateResolved })
	if snap.Role != role.RoleRider {
		t.Errorf("Role = %q, want %q", snap.Role, role.RoleRider)
	}
}

func TestStoreFailureClearsCache(t *testing.T) {
	src := identity.NewFakeSource()
	profiles := profile.NewMemoryStore()
	cache := rolecache.NewMemoryCache()
	if err := cache.Store(context.Background(), role.RoleEmployee); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	st := startStore(t, src, role.NewResolver(src, profiles), cache)

	src.SignIn(&identity.Principal{ID: "ghost"}, map[string]any{})

	snap := waitFor(t, st, "failure", func(s Snapshot) bool { return s.State == StateFailed })
	if snap.FailureReason != role.ReasonProfileMissing {
		t.Errorf("FailureReason = %q, want %q", snap.FailureReason, role.ReasonProfileMissing)
	}
	if snap.Role != "" {
		t.Errorf("failed snapshot carries role %q, want none", snap.Role)
	}
	if snap.RoleHint != "" {
		t.Errorf("failed snapshot carries role hint %q, want none", snap.RoleHint)
	}
	if _, err := cache.Load(context.Background()); err != rolecache.ErrNoCachedRole {
		t.Errorf("cache.Load after failure = %v, want ErrNoCachedRole", err)
	}
}

func TestStoreDiscardsStaleResolution(t *testing.T) {
	src := identity.NewFakeSource()
	claims := &gatedClaims{inner: src}
	st := startStore(t, src, role.NewResolver(claims, nil), rolecache.NewMemoryCache())

	// Hold the first principal's lookup open, then let a second principal
	// sign in and resolve. Releasing the first lookup afterwards must not
	// overwrite the second principal's committed role.
	entered, release := claims.holdNext()
	src.SignIn(&identity.Principal{ID: "first"}, map[string]any{"role": "customer"})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first lookup never started")
	}

	src.SignIn(&identity.Principal{ID: "second"}, map[string]any{"role": "admin"})
	snap := waitFor(t, st, "second resolution", func(s Snapshot) bool { return s.State == StateResolved })
	if snap.Role != role.RoleAdmin {
		t.Fatalf("Role = %q, want %q", snap.Role, role.RoleAdmin)
	}

	release()
	time.Sleep(50 * time.Millisecond)

	snap = st.Snapshot()
	if snap.Role != role.RoleAdmin || snap.Principal == nil || snap.Principal.ID != "second" {
		t.Errorf("stale resolution leaked: role=%q principal=%+v", snap.Role, snap.Principal)
	}
}

func TestStoreDirectPrincipalSwitchClearsPreviousRole(t *testing.T) {
	src := identity.NewFakeSource()
	claims := &gatedClaims{inner: src}
	cache := rolecache.NewMemoryCache()
	st := startStore(t, src, role.NewResolver(claims, nil), cache)

	src.SignIn(&identity.Principal{ID: "alice"}, map[string]any{"role": "admin"})
	waitFor(t, st, "first resolution", func(s Snapshot) bool { return s.State == StateResolved })

	// Switch straight to a second principal and hold its lookup open. The
	// first operator's role must not survive the window as a hint or as a
	// durable cache entry.
	entered, release := claims.holdNext()
	src.SignIn(&identity.Principal{ID: "bob"}, map[string]any{"role": "employee"})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("second lookup never started")
	}

	snap := st.Snapshot()
	if snap.State != StateResolving || snap.Principal == nil || snap.Principal.ID != "bob" {
		t.Fatalf("mid-switch snapshot = %+v, want bob resolving", snap)
	}
	if snap.RoleHint != "" {
		t.Errorf("mid-switch RoleHint = %q, want none", snap.RoleHint)
	}
	if _, err := cache.Load(context.Background()); err != rolecache.ErrNoCachedRole {
		t.Errorf("cache.Load mid-switch = %v, want ErrNoCachedRole", err)
	}

	release()
	snap = waitFor(t, st, "second resolution", func(s Snapshot) bool { return s.State == StateResolved })
	if snap.Role != role.RoleEmployee {
		t.Errorf("Role = %q, want %q", snap.Role, role.RoleEmployee)
	}
}

func TestStoreResolutionOverridesStaleCache(t *testing.T) {
	cache := rolecache.NewMemoryCache()
	if err := cache.Store(context.Background(), role.RoleRider); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	src := identity.NewFakeSource()
	st := startStore(t, src, role.NewResolver(src, nil), cache)

	src.SignIn(&identity.Principal{ID: "u1"}, map[string]any{"role": "admin"})

	snap := waitFor(t, st, "resolution", func(s Snapshot) bool { return s.State == StateResolved })
	if snap.Role != role.RoleAdmin {
		t.Errorf("Role = %q, want %q (authoritative source, not cache)", snap.Role, role.RoleAdmin)
	}
	if snap.RoleHint != role.RoleAdmin {
		t.Errorf("RoleHint = %q, want %q", snap.RoleHint, role.RoleAdmin)
	}
	got, err := cache.Load(context.Background())
	if err != nil {
		t.Fatalf("cache.Load: %v", err)
	}
	if got != role.RoleAdmin {
		t.Errorf("cached role = %q, want %q", got, role.RoleAdmin)
	}
}

func TestStoreSignOutClearsSession(t *testing.T) {
	src := identity.NewFakeSource()
	cache := rolecache.NewMemoryCache()
	st := startStore(t, src, role.NewResolver(src, nil), cache)

	src.SignIn(&identity.Principal{ID: "u1"}, map[string]any{"role": "employee"})
	waitFor(t, st, "resolution", func(s Snapshot) bool { return s.State == StateResolved })

	src.SignOutLocal()
	snap := waitFor(t, st, "clear", func(s Snapshot) bool { return s.Principal == nil })
	if snap.State != StateUnresolved || snap.Role != "" || snap.RoleHint != "" {
		t.Errorf("snapshot after sign-out = %+v, want empty unresolved", snap)
	}
	if snap.Loading() {
		t.Error("cleared snapshot should not be loading")
	}
	if _, err := cache.Load(context.Background()); err != rolecache.ErrNoCachedRole {
		t.Errorf("cache.Load after sign-out = %v, want ErrNoCachedRole", err)
	}
}

func TestStoreLogoutIsIdempotent(t *testing.T) {
	src := identity.NewFakeSource()
	cache := rolecache.NewMemoryCache()
	st := startStore(t, src, role.NewResolver(src, nil), cache)

	src.SignIn(&identity.Principal{ID: "u1"}, map[string]any{"role": "admin"})
	waitFor(t, st, "resolution", func(s Snapshot) bool { return s.State == StateResolved })

	st.Logout(context.Background())
	snap := st.Snapshot()
	if snap.Principal != nil || snap.State != StateUnresolved {
		t.Fatalf("local state not cleared synchronously: %+v", snap)
	}
	if _, err := cache.Load(context.Background()); err != rolecache.ErrNoCachedRole {
		t.Errorf("cache.Load after logout = %v, want ErrNoCachedRole", err)
	}

	// A second logout in any state is a no-op locally but still safe.
	st.Logout(context.Background())
	if snap := st.Snapshot(); snap.Principal != nil || snap.State != StateUnresolved {
		t.Errorf("second logout disturbed state: %+v", snap)
	}

	deadline := time.After(2 * time.Second)
	for src.SignOutCalls() < 2 {
		select {
		case <-deadline:
			t.Fatalf("provider sign-out calls = %d, want 2", src.SignOutCalls())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestStoreRetryAfterFailure(t *testing.T) {
	src := identity.NewFakeSource()
	profiles := profile.NewMemoryStore()
	st := startStore(t, src, role.NewResolver(src, profiles), rolecache.NewMemoryCache())

	src.SignIn(&identity.Principal{ID: "u3"}, map[string]any{})
	waitFor(t, st, "failure", func(s Snapshot) bool { return s.State == StateFailed })

	profiles.Put(&profile.Record{UID: "u3", Role: "employee"})
	st.Retry()

	snap := waitFor(t, st, "retry resolution", func(s Snapshot) bool { return s.State == StateResolved })
	if snap.Role != role.RoleEmployee {
		t.Errorf("Role = %q, want %q", snap.Role, role.RoleEmployee)
	}
}

func TestStoreRetryWithoutPrincipalIsNoop(t *testing.T) {
	src := identity.NewFakeSource()
	st := startStore(t, src, role.NewResolver(src, nil), rolecache.NewMemoryCache())

	st.Retry()
	if snap := st.Snapshot(); snap.State != StateUnresolved {
		t.Errorf("State = %s after retry without principal, want %s", snap.State, StateUnresolved)
	}
}

func TestStoreSubscribe(t *testing.T) {
	src := identity.NewFakeSource()
	st := startStore(t, src, role.NewResolver(src, nil), rolecache.NewMemoryCache())

	var mu sync.Mutex
	var seen []ResolutionState
	cancel := st.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s.State)
		mu.Unlock()
	})

	src.SignIn(&identity.Principal{ID: "u1"}, map[string]any{"role": "admin"})
	waitFor(t, st, "resolution", func(s Snapshot) bool { return s.State == StateResolved })

	mu.Lock()
	got := append([]ResolutionState(nil), seen...)
	mu.Unlock()
	want := []ResolutionState{StateResolving, StateResolved}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}

	cancel()
	src.SignOutLocal()
	waitFor(t, st, "clear", func(s Snapshot) bool { return s.Principal == nil })

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != len(want) {
		t.Errorf("cancelled subscriber still notified: %v", seen)
	}
}
