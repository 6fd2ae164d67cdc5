// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package guard

import (
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/lalaba-dev/opsgate/internal/logging"
	"github.com/lalaba-dev/opsgate/internal/role"
	"github.com/lalaba-dev/opsgate/internal/session"
)

// SnapshotSource yields the current session snapshot. The session store
// satisfies this.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// Middleware adapts guard decisions to HTTP. Render passes the request
// through, loading answers 202 with a retry hint, and the two redirect
// outcomes answer 302 to the configured pages.
type Middleware struct {
	src              SnapshotSource
	loginPath        string
	unauthorizedPath string
	log              zerolog.Logger
}

// NewMiddleware creates a Middleware redirecting to the given paths.
func NewMiddleware(src SnapshotSource, loginPath, unauthorizedPath string) *Middleware {
	return &Middleware{
		src:              src,
		loginPath:        loginPath,
		unauthorizedPath: unauthorizedPath,
		log:              logging.With().Str("component", "guard").Logger(),
	}
}

// Require guards a route subtree with the given role set. An empty set
// admits any authenticated, resolved role.
func (m *Middleware) Require(required role.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := m.src.Snapshot()
			decision := Evaluate(snap, required)
			guardDecisions.WithLabelValues(decision.String()).Inc()

			switch decision {
			case DecisionRender:
				next.ServeHTTP(w, r)
			case DecisionLoading:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusAccepted)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"status": "resolving",
				})
			case DecisionRedirectToLogin:
				http.Redirect(w, r, m.loginPath, http.StatusFound)
			case DecisionRedirectToUnauthorized:
				m.log.Debug().
					Str("path", r.URL.Path).
					Str("role", snap.Role.String()).
					Str("state", snap.State.String()).
					Msg("request refused by route guard")
				http.Redirect(w, r, m.unauthorizedPath, http.StatusFound)
			}
		})
	}
}
