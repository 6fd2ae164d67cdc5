// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Package profile provides the fallback role source: a server-held profile
// record keyed by principal id. The record is mutable on the server and is
// consulted only when the signed token carries no usable role claim.
package profile

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no profile record exists for a principal.
var ErrNotFound = errors.New("profile not found")

// Record is a profile record from the platform's users collection.
type Record struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Store reads profile records by principal id.
type Store interface {
	// GetProfile returns the record for the given principal id.
	// Returns ErrNotFound if no record exists.
	GetProfile(ctx context.Context, principalID string) (*Record, error)
}

// MemoryStore is an in-memory Store for tests and development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Put stores or replaces a record.
func (s *MemoryStore) Put(rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *rec
	s.records[rec.UID] = &stored
}

// Delete removes a record. Deleting a missing record is a no-op.
func (s *MemoryStore) Delete(principalID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, principalID)
}

// GetProfile returns a copy of the stored record.
func (s *MemoryStore) GetProfile(ctx context.Context, principalID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[principalID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}
