// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Package identity defines the contract with the external identity provider
// and its OIDC-backed implementation. The provider owns the principal and
// its credentials; the rest of the gateway only ever holds references.
package identity

import (
	"context"
	"errors"
)

// Identity source errors.
var (
	// ErrNoSession indicates no principal is currently signed in.
	ErrNoSession = errors.New("no active session")

	// ErrCredentialRejected indicates the provider rejected or could not
	// refresh the session credential. The session store translates this
	// into a forced sign-out.
	ErrCredentialRejected = errors.New("credential rejected")
)

// Principal is the authenticated identity as reported by the provider.
// It is owned by the identity source; holders must not mutate it.
type Principal struct {
	// ID is the provider's opaque unique identifier (the 'sub' claim).
	ID string `json:"id"`

	// Email is the principal's email address, if the provider shared it.
	Email string `json:"email,omitempty"`
}

// Source is the identity provider contract.
//
// Implementations must invoke a newly registered session-change listener
// immediately with the current principal (possibly nil), and again on every
// sign-in and sign-out. Listeners are called sequentially; a slow listener
// delays later ones.
type Source interface {
	// OnSessionChange registers a listener for principal changes.
	// The returned function cancels the registration.
	OnSessionChange(fn func(p *Principal)) (cancel func())

	// Token returns the current signed session token, refreshing it first
	// when forceRefresh is set or the cached token is about to expire.
	// Returns ErrNoSession when nobody is signed in and
	// ErrCredentialRejected when the provider refuses the refresh.
	Token(ctx context.Context, forceRefresh bool) (string, error)

	// TokenClaims returns the claims embedded in the current signed token.
	TokenClaims(ctx context.Context) (map[string]any, error)

	// SignOut terminates the provider-side session. Local state owned by
	// callers is cleared by them, not by the source.
	SignOut(ctx context.Context) error
}
