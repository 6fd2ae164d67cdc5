// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lalaba-dev/opsgate/internal/identity"
	"github.com/lalaba-dev/opsgate/internal/logging"
	"github.com/lalaba-dev/opsgate/internal/role"
	"github.com/lalaba-dev/opsgate/internal/rolecache"
)

// defaultResolveTimeout bounds a single role lookup.
const defaultResolveTimeout = 15 * time.Second

// Store is the process-wide owner of session state. It subscribes to the
// identity source for its lifetime, drives the resolution state machine,
// and mirrors committed roles into the durable cache. All mutation happens
// here; everything else reads snapshots.
//
// Store implements suture.Service: run it under the process supervisor so
// the identity subscription is re-established if the service loop exits.
type Store struct {
	src      identity.Source
	resolver *role.Resolver
	cache    rolecache.Cache
	timeout  time.Duration
	log      zerolog.Logger

	mu sync.Mutex
	// epoch increments on every principal change, logout and retry. A
	// lookup captures the epoch at initiation and may only commit while
	// it still matches; this is the staleness guard that stands in for
	// cancellation.
	epoch   uint64
	snap    Snapshot
	subs    map[int]func(Snapshot)
	nextSub int
}

// Option customizes a Store.
type Option func(*Store)

// WithResolveTimeout overrides the per-lookup timeout.
func WithResolveTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewStore creates a Store and reads the durable cache once for the
// startup role hint. It does not subscribe to the identity source yet;
// that happens in Serve.
func NewStore(src identity.Source, resolver *role.Resolver, cache rolecache.Cache, opts ...Option) *Store {
	s := &Store{
		src:      src,
		resolver: resolver,
		cache:    cache,
		timeout:  defaultResolveTimeout,
		log:      logging.With().Str("component", "session").Logger(),
		subs:     make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if hint, err := cache.Load(context.Background()); err == nil {
		s.snap.RoleHint = hint
		cacheOperations.WithLabelValues("load", "success").Inc()
		s.log.Debug().Str("role_hint", hint.String()).Msg("loaded cached role hint")
	} else if errors.Is(err, rolecache.ErrNoCachedRole) {
		cacheOperations.WithLabelValues("load", "empty").Inc()
	} else {
		cacheOperations.WithLabelValues("load", "failure").Inc()
	}

	return s
}

// Serve subscribes to the identity source and blocks until ctx is done.
// Implements suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	cancel := s.src.OnSessionChange(s.onSessionChange)
	defer cancel()

	<-ctx.Done()
	return ctx.Err()
}

// String identifies the store in supervisor logs.
func (s *Store) String() string {
	return "session-store"
}

// Snapshot returns the current committed session state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers fn to be called after every committed transition.
// fn runs on the committing goroutine; keep it fast. The returned function
// cancels the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Logout clears local session state immediately and signs out at the
// provider in the background. The local clear never waits on the provider:
// a dead network must not leave the console stuck logged in.
// Logout is idempotent.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.snap = Snapshot{State: StateUnresolved, reported: true}
	s.clearCacheLocked()
	snap, subs := s.snap, s.subscriberList()
	s.mu.Unlock()

	logoutsTotal.Inc()
	notify(subs, snap)

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.src.SignOut(ctx); err != nil {
			s.log.Warn().Err(err).Msg("provider sign-out failed; local state already cleared")
		}
	}()
}

// Retry re-initiates resolution for the current principal after a failure.
// This is the explicit retry affordance: the store itself never re-runs a
// failed lookup on its own. No-op unless a principal is present.
func (s *Store) Retry() {
	s.mu.Lock()
	p := s.snap.Principal
	if p == nil {
		s.mu.Unlock()
		return
	}
	s.epoch++
	epoch := s.epoch
	s.snap.State = StateResolving
	s.snap.Role = ""
	s.snap.FailureReason = ""
	snap, subs := s.snap, s.subscriberList()
	s.mu.Unlock()

	notify(subs, snap)
	go s.resolve(epoch, p)
}

// onSessionChange is the identity source listener. Exactly one committed
// transition follows each notification; any lookup still in flight for a
// previous principal is superseded by the epoch bump.
func (s *Store) onSessionChange(p *identity.Principal) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	hint := s.snap.RoleHint

	if p == nil {
		s.snap = Snapshot{State: StateUnresolved, reported: true}
		s.clearCacheLocked()
		snap, subs := s.snap, s.subscriberList()
		s.mu.Unlock()

		s.log.Info().Msg("session cleared")
		notify(subs, snap)
		return
	}

	// A direct switch to a different principal, with no sign-out in
	// between, must not leave the previous operator's role visible as a
	// hint or as the next startup's cache entry while the new lookup is
	// in flight.
	if prev := s.snap.Principal; prev != nil && prev.ID != p.ID {
		hint = ""
		s.clearCacheLocked()
	}

	s.snap = Snapshot{
		Principal: p,
		State:     StateResolving,
		RoleHint:  hint,
		reported:  true,
	}
	snap, subs := s.snap, s.subscriberList()
	s.mu.Unlock()

	s.log.Info().Str("principal", p.ID).Msg("principal reported, resolving role")
	notify(subs, snap)
	go s.resolve(epoch, p)
}

// resolve runs one role lookup and commits the result unless superseded.
func (s *Store) resolve(epoch uint64, p *identity.Principal) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	r, err := s.resolver.Resolve(ctx, p.ID)
	resolutionDuration.Observe(time.Since(start).Seconds())

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		// A newer principal change won the race; this result is dead.
		resolutionsTotal.WithLabelValues("stale_discarded").Inc()
		s.log.Debug().
			Str("principal", p.ID).
			Msg("discarding stale role resolution")
		return
	}

	if err != nil {
		reason, _ := role.ReasonOf(err)
		s.snap.State = StateFailed
		s.snap.Role = ""
		s.snap.RoleHint = ""
		s.snap.FailureReason = reason
		s.clearCacheLocked()
		snap, subs := s.snap, s.subscriberList()
		s.mu.Unlock()

		resolutionsTotal.WithLabelValues("failed").Inc()
		resolutionFailures.WithLabelValues(string(reason)).Inc()
		s.log.Error().
			Err(err).
			Str("principal", p.ID).
			Msg("role resolution failed")
		notify(subs, snap)
		return
	}

	s.snap.State = StateResolved
	s.snap.Role = r
	s.snap.RoleHint = r
	s.snap.FailureReason = ""
	if cerr := s.cache.Store(ctx, r); cerr != nil {
		cacheOperations.WithLabelValues("store", "failure").Inc()
		s.log.Warn().Err(cerr).Msg("failed to persist resolved role")
	} else {
		cacheOperations.WithLabelValues("store", "success").Inc()
	}
	snap, subs := s.snap, s.subscriberList()
	s.mu.Unlock()

	resolutionsTotal.WithLabelValues("resolved").Inc()
	s.log.Info().
		Str("principal", p.ID).
		Str("role", r.String()).
		Msg("role resolved")
	notify(subs, snap)
}

// clearCacheLocked empties the durable slot. Caller holds s.mu; the write
// stays under the lock so a concurrent commit cannot interleave between
// clearing the cache and clearing the snapshot.
func (s *Store) clearCacheLocked() {
	if err := s.cache.Clear(context.Background()); err != nil {
		cacheOperations.WithLabelValues("clear", "failure").Inc()
		s.log.Warn().Err(err).Msg("failed to clear cached role")
		return
	}
	cacheOperations.WithLabelValues("clear", "success").Inc()
}

// subscriberList snapshots the subscribers. Caller holds s.mu.
func (s *Store) subscriberList() []func(Snapshot) {
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

// notify delivers snap to each subscriber outside the store lock.
func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}
