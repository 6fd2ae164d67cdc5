// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package rolecache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/lalaba-dev/opsgate/internal/role"
)

// cachedRoleKey is the fixed storage key. The slot is not keyed by principal
// id: the gateway serves a single operator session, and keying by principal
// would leave stale entries behind on account switch.
const cachedRoleKey = "cached-role"

// BadgerCache implements Cache on BadgerDB for persistence across restarts.
type BadgerCache struct {
	db *badger.DB
}

// NewBadgerCache wraps an open BadgerDB handle. The caller owns the handle
// and closes it at shutdown.
func NewBadgerCache(db *badger.DB) *BadgerCache {
	return &BadgerCache{db: db}
}

// Load reads and validates the slot. Any unreadable or out-of-set value is
// reported as ErrNoCachedRole rather than propagated: a corrupt cache must
// degrade to a cold start, never to an error the caller might act on.
func (c *BadgerCache) Load(ctx context.Context) (role.Role, error) {
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cachedRoleKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoCachedRole
		}
		if err != nil {
			return fmt.Errorf("get cached role: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if err != nil {
		return "", ErrNoCachedRole
	}

	parsed, err := role.ParseRole(e.Role)
	if err != nil {
		return "", ErrNoCachedRole
	}
	return parsed, nil
}

// Store writes r to the slot.
func (c *BadgerCache) Store(ctx context.Context, r role.Role) error {
	data, err := json.Marshal(entry{Role: r.String(), SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cached role: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(cachedRoleKey), data)
	})
}

// Clear empties the slot.
func (c *BadgerCache) Clear(ctx context.Context) error {
	return c.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(cachedRoleKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}
