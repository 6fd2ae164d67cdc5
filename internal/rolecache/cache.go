// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Package rolecache persists the last resolved role across process restarts.
//
// The cache is a single fixed slot, written through on every successful
// resolution and cleared on sign-out or failure. It exists purely to hide
// startup latency: the authoritative resolver always re-runs, and nothing
// in the gateway makes an authorization decision from a cached value.
package rolecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lalaba-dev/opsgate/internal/role"
)

// ErrNoCachedRole is returned when the slot is empty or holds a value
// outside the closed role set. A corrupt slot reads as empty.
var ErrNoCachedRole = errors.New("no cached role")

// Cache is the durable single-slot role store.
type Cache interface {
	// Load returns the cached role, or ErrNoCachedRole when the slot is
	// empty or unreadable.
	Load(ctx context.Context) (role.Role, error)

	// Store writes r to the slot, replacing any previous value.
	Store(ctx context.Context, r role.Role) error

	// Clear empties the slot. Clearing an empty slot is a no-op.
	Clear(ctx context.Context) error
}

// entry is the persisted slot value.
type entry struct {
	Role    string    `json:"role"`
	SavedAt time.Time `json:"saved_at"`
}

// MemoryCache is an in-memory Cache for tests and development.
type MemoryCache struct {
	mu  sync.Mutex
	val role.Role
	set bool
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Load returns the cached role.
func (c *MemoryCache) Load(ctx context.Context) (role.Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return "", ErrNoCachedRole
	}
	return c.val, nil
}

// Store writes r to the slot.
func (c *MemoryCache) Store(ctx context.Context, r role.Role) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = r
	c.set = true
	return nil
}

// Clear empties the slot.
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.val = ""
	c.set = false
	return nil
}
