// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package role

import (
	"context"
	"errors"
	"fmt"

	"github.com/lalaba-dev/opsgate/internal/profile"
)

// DefaultRoleClaim is the claim name carrying the role in the signed token.
const DefaultRoleClaim = "role"

// ClaimReader exposes the current principal's signed-token claims.
// The identity source satisfies this.
type ClaimReader interface {
	TokenClaims(ctx context.Context) (map[string]any, error)
}

// Resolver maps a principal to a role, hiding which of two sources supplied
// it. The signed token claim always wins over the profile record: the claim
// is signed by the identity provider and so is far harder to tamper with
// from the client side than a mutable server record.
//
// Resolve is a pure lookup. Caching the result, and deciding when a result
// is stale, is the session store's job.
type Resolver struct {
	claims    ClaimReader
	profiles  profile.Store
	roleClaim string
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithRoleClaim overrides the claim name read from the signed token.
func WithRoleClaim(name string) ResolverOption {
	return func(r *Resolver) {
		if name != "" {
			r.roleClaim = name
		}
	}
}

// NewResolver creates a Resolver.
// profiles may be nil when no fallback source is configured; resolution then
// fails with ReasonClaimMissing whenever the token yields no usable claim.
func NewResolver(claims ClaimReader, profiles profile.Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		claims:    claims,
		profiles:  profiles,
		roleClaim: DefaultRoleClaim,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve determines the role for principalID.
//
// Source A: the role claim embedded in the signed token. Used if present and
// a member of the closed role set; no network round trip beyond token
// refresh. An unparseable or out-of-set claim value is treated the same as
// an absent claim.
//
// Source B: the profile record for principalID. Consulted only when source A
// yields nothing.
//
// On failure the returned error is always a *ResolutionError; the role is
// never defaulted.
func (r *Resolver) Resolve(ctx context.Context, principalID string) (Role, error) {
	claimErr := error(nil)
	claims, err := r.claims.TokenClaims(ctx)
	if err != nil {
		claimErr = err
	} else if raw, ok := claims[r.roleClaim]; ok {
		if s, ok := raw.(string); ok {
			if parsed, perr := ParseRole(s); perr == nil {
				return parsed, nil
			}
			claimErr = fmt.Errorf("claim %q carries unknown role %q", r.roleClaim, s)
		}
	}

	if r.profiles == nil {
		return "", &ResolutionError{Reason: ReasonClaimMissing, Err: claimErr}
	}

	rec, err := r.profiles.GetProfile(ctx, principalID)
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return "", &ResolutionError{Reason: ReasonProfileMissing, Err: err}
	case err != nil:
		return "", &ResolutionError{Reason: ReasonProfileUnavailable, Err: err}
	}

	if rec.Role == "" {
		return "", &ResolutionError{
			Reason: ReasonProfileRoleInvalid,
			Err:    fmt.Errorf("profile for %s carries no role", principalID),
		}
	}
	parsed, err := ParseRole(rec.Role)
	if err != nil {
		return "", &ResolutionError{Reason: ReasonProfileRoleInvalid, Err: err}
	}
	return parsed, nil
}
