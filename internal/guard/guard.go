// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Package guard decides what happens when a request reaches a protected
// route: serve it, hold it while the session resolves, or bounce it to the
// login or unauthorized page. The decision function is pure so every
// transport adapter and test sees identical outcomes.
package guard

import (
	"github.com/lalaba-dev/opsgate/internal/role"
	"github.com/lalaba-dev/opsgate/internal/session"
)

// Decision is the outcome of evaluating a session against a route's
// role requirement.
type Decision int

const (
	// DecisionRender lets the request through.
	DecisionRender Decision = iota
	// DecisionLoading holds the request while resolution is in flight.
	DecisionLoading
	// DecisionRedirectToLogin bounces an unauthenticated request.
	DecisionRedirectToLogin
	// DecisionRedirectToUnauthorized bounces an authenticated request
	// whose role does not cover the route, or whose resolution failed.
	DecisionRedirectToUnauthorized
)

func (d Decision) String() string {
	switch d {
	case DecisionRender:
		return "render"
	case DecisionLoading:
		return "loading"
	case DecisionRedirectToLogin:
		return "redirect_login"
	case DecisionRedirectToUnauthorized:
		return "redirect_unauthorized"
	default:
		return "unknown"
	}
}

// Evaluate maps a session snapshot and a route's required roles to a
// Decision. It is total: every snapshot yields exactly one outcome, and a
// failed resolution always redirects rather than leaving the caller hung.
//
// An empty required set means "any authenticated, resolved role". It does
// not mean public; an unauthenticated request still redirects to login.
func Evaluate(snap session.Snapshot, required role.Set) Decision {
	// While a credential may exist but the role is not committed yet,
	// holding wins over redirecting. This covers both an in-flight lookup
	// and the startup window where only the cached hint is known.
	if snap.Loading() {
		return DecisionLoading
	}

	if snap.Principal == nil {
		return DecisionRedirectToLogin
	}

	switch snap.State {
	case session.StateResolved:
		if len(required) == 0 || required.Contains(snap.Role) {
			return DecisionRender
		}
		return DecisionRedirectToUnauthorized
	case session.StateFailed:
		// No role could be established for this principal. Treating that
		// as unauthorized rather than waiting keeps the console responsive
		// and never grants access on an unproven role.
		return DecisionRedirectToUnauthorized
	default:
		// Principal present but resolution not started or still settling.
		return DecisionLoading
	}
}
