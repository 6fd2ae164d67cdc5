// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package rolecache

import (
	"context"
	"errors"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/lalaba-dev/opsgate/internal/role"
)

// cacheUnderTest runs the shared contract against any Cache implementation.
func cacheUnderTest(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, err := c.Load(ctx); !errors.Is(err, ErrNoCachedRole) {
		t.Fatalf("Load on empty cache = %v, want ErrNoCachedRole", err)
	}

	if err := c.Store(ctx, role.RoleAdmin); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := c.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != role.RoleAdmin {
		t.Errorf("Load = %q, want %q", got, role.RoleAdmin)
	}

	// The slot holds one role; a second write overwrites.
	if err := c.Store(ctx, role.RoleEmployee); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err = c.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != role.RoleEmployee {
		t.Errorf("Load after overwrite = %q, want %q", got, role.RoleEmployee)
	}

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := c.Load(ctx); !errors.Is(err, ErrNoCachedRole) {
		t.Errorf("Load after clear = %v, want ErrNoCachedRole", err)
	}

	// Clear is idempotent.
	if err := c.Clear(ctx); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestMemoryCache(t *testing.T) {
	cacheUnderTest(t, NewMemoryCache())
}

func newBadgerDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerCache(t *testing.T) {
	cacheUnderTest(t, NewBadgerCache(newBadgerDB(t)))
}

func TestBadgerCacheCorruptEntryReadsAsEmpty(t *testing.T) {
	db := newBadgerDB(t)
	c := NewBadgerCache(db)
	ctx := context.Background()

	err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("cached-role"), []byte("not json"))
	})
	if err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	if _, err := c.Load(ctx); !errors.Is(err, ErrNoCachedRole) {
		t.Fatalf("Load of corrupt entry = %v, want ErrNoCachedRole", err)
	}

	// A fresh write recovers the slot.
	if err := c.Store(ctx, role.RoleAdmin); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, err := c.Load(ctx)
	if err != nil || got != role.RoleAdmin {
		t.Errorf("Load after recovery = %q, %v", got, err)
	}
}

func TestBadgerCacheOutOfSetRoleReadsAsEmpty(t *testing.T) {
	db := newBadgerDB(t)
	c := NewBadgerCache(db)

	err := db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("cached-role"), []byte(`{"role":"superuser","saved_at":"2026-01-01T00:00:00Z"}`))
	})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	if _, err := c.Load(context.Background()); !errors.Is(err, ErrNoCachedRole) {
		t.Errorf("Load of out-of-set role = %v, want ErrNoCachedRole", err)
	}
}
