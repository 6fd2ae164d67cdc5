// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package router

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/lalaba-dev/opsgate/internal/identity"
	"github.com/lalaba-dev/opsgate/internal/session"
)

// sessionView is the wire shape of a session snapshot. The cached role
// hint is surfaced separately from the committed role so clients can use
// it to shape a loading skeleton but never as an authorization answer.
type sessionView struct {
	State         string              `json:"state"`
	Loading       bool                `json:"loading"`
	Principal     *identity.Principal `json:"principal,omitempty"`
	Role          string              `json:"role,omitempty"`
	RoleHint      string              `json:"role_hint,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

func viewOf(snap session.Snapshot) sessionView {
	return sessionView{
		State:         snap.State.String(),
		Loading:       snap.Loading(),
		Principal:     snap.Principal,
		Role:          snap.Role.String(),
		RoleHint:      snap.RoleHint.String(),
		FailureReason: string(snap.FailureReason),
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rt *Router) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) unauthorized(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusForbidden, map[string]string{
		"error": "your account does not have access to this console",
	})
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, viewOf(rt.store.Snapshot()))
}

func (rt *Router) logout(w http.ResponseWriter, r *http.Request) {
	rt.store.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) retry(w http.ResponseWriter, r *http.Request) {
	rt.store.Retry()
	respondJSON(w, http.StatusAccepted, viewOf(rt.store.Snapshot()))
}

// devSignInRequest is accepted by the development sign-in endpoint.
type devSignInRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// devSignIn drives the fake identity source. Mounted only in fake mode.
func (rt *Router) devSignIn(w http.ResponseWriter, r *http.Request) {
	var req devSignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.ID == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "id is required"})
		return
	}

	claims := map[string]any{}
	if req.Role != "" {
		claims["role"] = req.Role
	}
	rt.fake.SignIn(&identity.Principal{ID: req.ID, Email: req.Email}, claims)
	respondJSON(w, http.StatusOK, viewOf(rt.store.Snapshot()))
}
