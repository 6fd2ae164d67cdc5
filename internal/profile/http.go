// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package profile

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/lalaba-dev/opsgate/internal/logging"
)

// ErrUnavailable is returned when the profile API cannot be reached or the
// circuit breaker is open. It deliberately covers both cases: a tripped
// breaker and a network failure look the same to the resolver, which must
// not retry either.
var ErrUnavailable = errors.New("profile store unavailable")

// TokenSource supplies the bearer credential attached to profile API calls.
// The identity source satisfies this.
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// HTTPStoreConfig configures the HTTP-backed profile store.
type HTTPStoreConfig struct {
	// BaseURL is the platform API base, e.g. "https://api.lalaba.dev/admin".
	// Records are fetched from {BaseURL}/users/{principalID}.
	BaseURL string

	// Timeout bounds a single profile fetch. Default: 10s.
	Timeout time.Duration

	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit. Default: 5.
	BreakerThreshold uint32

	// BreakerCooldown is how long the circuit stays open before a probe.
	// Default: 30s.
	BreakerCooldown time.Duration

	// HTTPClient overrides the default client. Timeout is still applied
	// per-request via context.
	HTTPClient *http.Client
}

// HTTPStore fetches profile records from the platform API.
//
// A circuit breaker wraps every fetch so that a dead backend fails fast
// instead of being hammered once per resolution attempt. Not-found is a
// successful outcome for the breaker: a missing record is an answer, not
// an outage.
type HTTPStore struct {
	base    *url.URL
	client  *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[*Record]
	timeout time.Duration
}

// NewHTTPStore creates an HTTP-backed profile store.
// tokens may be nil, in which case requests carry no Authorization header.
func NewHTTPStore(cfg HTTPStoreConfig, tokens TokenSource) (*HTTPStore, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse profile base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("profile base url %q: scheme and host required", cfg.BaseURL)
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	s := &HTTPStore{
		base:    base,
		client:  client,
		tokens:  tokens,
		timeout: cfg.Timeout,
	}

	settings := gobreaker.Settings{
		Name:    "profile-store",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Profile store circuit state changed")
		},
	}
	s.breaker = gobreaker.NewCircuitBreaker[*Record](settings)

	return s, nil
}

// GetProfile fetches the record for principalID from the platform API.
// Returns ErrNotFound for a 404 and ErrUnavailable for transport failures,
// server errors, and an open circuit.
func (s *HTTPStore) GetProfile(ctx context.Context, principalID string) (*Record, error) {
	rec, err := s.breaker.Execute(func() (*Record, error) {
		return s.fetch(ctx, principalID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return nil, err
	}
	return rec, nil
}

func (s *HTTPStore) fetch(ctx context.Context, principalID string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	u := s.base.JoinPath("users", url.PathEscape(principalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	if s.tokens != nil {
		token, err := s.tokens.Token(ctx, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnavailable, resp.StatusCode)
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode record: %v", ErrUnavailable, err)
	}
	if rec.UID == "" {
		rec.UID = principalID
	}
	return &rec, nil
}
