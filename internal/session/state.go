// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Package session holds the single authoritative session state: the current
// principal, its resolved role, and the resolution state machine that ties
// the identity source, role resolver and durable role cache together.
package session

import (
	"github.com/lalaba-dev/opsgate/internal/identity"
	"github.com/lalaba-dev/opsgate/internal/role"
)

// ResolutionState is the lifecycle state of the current role resolution.
type ResolutionState int

const (
	// StateUnresolved: no principal, or the principal has not been
	// reported yet.
	StateUnresolved ResolutionState = iota

	// StateResolving: a principal is known and exactly one role lookup is
	// outstanding for it.
	StateResolving

	// StateResolved: the lookup committed a role.
	StateResolved

	// StateFailed: the lookup failed. Terminal until the next principal
	// change; never auto-retried.
	StateFailed
)

// String returns the lowercase state name.
func (s ResolutionState) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is an immutable view of the session handed to consumers. The
// store never exposes partially updated state: every snapshot corresponds
// to exactly one committed transition.
type Snapshot struct {
	// Principal is the current authenticated principal, or nil.
	// The struct is owned by the identity source; do not mutate.
	Principal *identity.Principal

	// Role is the authoritatively resolved role; empty unless State is
	// StateResolved. Never set while Principal is nil.
	Role role.Role

	// State is the resolution state.
	State ResolutionState

	// RoleHint is the durable-cache value read at startup. It hides the
	// cold-start loading flash in the console and carries no authority:
	// the guard never reads it.
	RoleHint role.Role

	// FailureReason is set when State is StateFailed.
	FailureReason role.Reason

	// reported is true once the identity source has delivered its first
	// session-change notification this process lifetime.
	reported bool
}

// Loading reports whether consumers should hold rendering: either a lookup
// is outstanding, or the identity source has not reported yet while the
// cached role suggests a credential exists. Treating that startup window as
// loading rather than unauthenticated is what keeps the console from
// flashing a login redirect at a signed-in operator.
func (s Snapshot) Loading() bool {
	if s.State == StateResolving {
		return true
	}
	return !s.reported && s.RoleHint != ""
}
