// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"

	"github.com/lalaba-dev/opsgate/internal/logging"
)

// refreshLeeway is how close to expiry a cached ID token may get before
// Token refreshes it instead of returning it.
const refreshLeeway = 30 * time.Second

// stateTTL bounds how long a login attempt's state parameter stays valid.
const stateTTL = 10 * time.Minute

// OIDCConfig configures the OIDC-backed identity source.
type OIDCConfig struct {
	// IssuerURL is the provider's issuer URL; discovery runs against it.
	IssuerURL string

	// ClientID is the OAuth 2.0 client identifier.
	ClientID string

	// ClientSecret is the client secret. Optional with PKCE.
	ClientSecret string

	// RedirectURL is the registered callback URL, e.g.
	// "https://console.lalaba.dev/auth/callback".
	RedirectURL string

	// Scopes defaults to ["openid", "profile", "email"].
	Scopes []string

	// PKCEEnabled enables PKCE for the authorization code flow.
	PKCEEnabled bool

	// PostLoginRedirect is where the browser lands after a successful
	// callback. Default: "/".
	PostLoginRedirect string

	// HTTPClient overrides the client used for provider requests.
	HTTPClient *http.Client
}

func (c *OIDCConfig) setDefaults() {
	if len(c.Scopes) == 0 {
		c.Scopes = []string{"openid", "profile", "email"}
	}
	if c.PostLoginRedirect == "" {
		c.PostLoginRedirect = "/"
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
}

// OIDCSource implements Source against an OIDC provider using the certified
// zitadel relying-party client. It holds the session credential (refresh
// token) and exchanges it for short-lived signed ID tokens on demand.
type OIDCSource struct {
	rp  rp.RelyingParty
	cfg OIDCConfig

	mu           sync.Mutex
	current      *Principal
	claims       map[string]any
	idToken      string
	refreshToken string
	idExpiry     time.Time
	listeners    map[int]func(*Principal)
	nextID       int
	states       map[string]time.Time
}

// NewOIDCSource performs OIDC discovery and returns a signed-out source.
func NewOIDCSource(ctx context.Context, cfg OIDCConfig) (*OIDCSource, error) {
	cfg.setDefaults()
	if cfg.IssuerURL == "" || cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, fmt.Errorf("oidc config: issuer_url, client_id and redirect_url are required")
	}

	options := []rp.Option{rp.WithHTTPClient(cfg.HTTPClient)}
	if cfg.PKCEEnabled {
		options = append(options, rp.WithPKCE(nil))
	}

	relyingParty, err := rp.NewRelyingPartyOIDC(ctx,
		cfg.IssuerURL,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.RedirectURL,
		cfg.Scopes,
		options...,
	)
	if err != nil {
		return nil, fmt.Errorf("create relying party: %w", err)
	}

	return &OIDCSource{
		rp:        relyingParty,
		cfg:       cfg,
		listeners: make(map[int]func(*Principal)),
		states:    make(map[string]time.Time),
	}, nil
}

// HandleLogin starts the authorization code flow: it generates a state
// parameter and redirects the browser to the provider.
func (s *OIDCSource) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()

	s.mu.Lock()
	now := time.Now()
	for k, t := range s.states {
		if now.Sub(t) > stateTTL {
			delete(s.states, k)
		}
	}
	s.states[state] = now
	s.mu.Unlock()

	http.Redirect(w, r, rp.AuthURL(state, s.rp), http.StatusFound)
}

// HandleCallback finishes the code flow: it validates the state, exchanges
// the code for tokens, establishes the session, and notifies listeners.
func (s *OIDCSource) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	s.mu.Lock()
	issued, ok := s.states[state]
	delete(s.states, state)
	s.mu.Unlock()

	if state == "" || !ok || time.Since(issued) > stateTTL {
		logging.Warn().Msg("OIDC callback with unknown or expired state")
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	tokens, err := rp.CodeExchange[*oidc.IDTokenClaims](r.Context(), code, s.rp)
	if err != nil {
		logging.Error().Err(err).Msg("OIDC code exchange failed")
		http.Error(w, "token exchange failed", http.StatusBadGateway)
		return
	}

	p := s.establish(tokens)
	logging.Info().Str("principal", p.ID).Msg("OIDC sign-in established")
	http.Redirect(w, r, s.cfg.PostLoginRedirect, http.StatusFound)
}

// establish commits the token set, updates the current principal, and
// notifies listeners. Returns the new principal.
func (s *OIDCSource) establish(tokens *oidc.Tokens[*oidc.IDTokenClaims]) *Principal {
	p := &Principal{}
	claims := map[string]any{}

	if tokens.IDTokenClaims != nil {
		p.ID = tokens.IDTokenClaims.Subject
		p.Email = tokens.IDTokenClaims.Email
		for k, v := range tokens.IDTokenClaims.Claims {
			claims[k] = v
		}
		claims["sub"] = tokens.IDTokenClaims.Subject
		if tokens.IDTokenClaims.Email != "" {
			claims["email"] = tokens.IDTokenClaims.Email
		}
	}

	s.mu.Lock()
	s.current = p
	s.claims = claims
	s.idToken = tokens.IDToken
	s.refreshToken = tokens.RefreshToken
	s.idExpiry = idTokenExpiry(tokens.IDToken, tokens.Expiry)
	fns := s.listenerList()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
	return p
}

// OnSessionChange registers fn, invoking it immediately with the current
// principal per the Source contract.
func (s *OIDCSource) OnSessionChange(fn func(p *Principal)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := s.current
	s.mu.Unlock()

	fn(current)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Token returns the current signed ID token, refreshing it first when
// forceRefresh is set or the cached token is within refreshLeeway of expiry.
func (s *OIDCSource) Token(ctx context.Context, forceRefresh bool) (string, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return "", ErrNoSession
	}
	if !forceRefresh && s.idToken != "" && time.Until(s.idExpiry) > refreshLeeway {
		token := s.idToken
		s.mu.Unlock()
		return token, nil
	}
	refresh := s.refreshToken
	s.mu.Unlock()

	if refresh == "" {
		return "", fmt.Errorf("%w: no refresh token", ErrCredentialRejected)
	}

	tokens, err := rp.RefreshTokens[*oidc.IDTokenClaims](ctx, s.rp, refresh, "", "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCredentialRejected, err)
	}

	s.mu.Lock()
	// A sign-out may have raced the refresh; do not resurrect the session.
	if s.current == nil {
		s.mu.Unlock()
		return "", ErrNoSession
	}
	s.idToken = tokens.IDToken
	if tokens.RefreshToken != "" {
		s.refreshToken = tokens.RefreshToken
	}
	s.idExpiry = idTokenExpiry(tokens.IDToken, tokens.Expiry)
	if tokens.IDTokenClaims != nil {
		claims := map[string]any{}
		for k, v := range tokens.IDTokenClaims.Claims {
			claims[k] = v
		}
		claims["sub"] = tokens.IDTokenClaims.Subject
		if tokens.IDTokenClaims.Email != "" {
			claims["email"] = tokens.IDTokenClaims.Email
		}
		s.claims = claims
	}
	token := s.idToken
	s.mu.Unlock()

	return token, nil
}

// TokenClaims returns the claims of the current signed token, refreshing the
// token first if it has expired.
func (s *OIDCSource) TokenClaims(ctx context.Context) (map[string]any, error) {
	if _, err := s.Token(ctx, false); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any, len(s.claims))
	for k, v := range s.claims {
		out[k] = v
	}
	return out, nil
}

// SignOut clears the local token set, notifies listeners, and best-effort
// terminates the provider session via the end-session endpoint.
func (s *OIDCSource) SignOut(ctx context.Context) error {
	s.mu.Lock()
	idToken := s.idToken
	s.current = nil
	s.claims = nil
	s.idToken = ""
	s.refreshToken = ""
	s.idExpiry = time.Time{}
	fns := s.listenerList()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(nil)
	}

	endpoint := s.rp.GetEndSessionEndpoint()
	if endpoint == "" || idToken == "" {
		return nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse end session endpoint: %w", err)
	}
	q := u.Query()
	q.Set("id_token_hint", idToken)
	q.Set("client_id", s.cfg.ClientID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build end session request: %w", err)
	}
	resp, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("end session request: %w", err)
	}
	resp.Body.Close()
	return nil
}

// listenerList snapshots the registered listeners. Caller holds s.mu.
func (s *OIDCSource) listenerList() []func(*Principal) {
	fns := make([]func(*Principal), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	return fns
}

// idTokenExpiry extracts the exp claim from an ID token. The token arrived
// over the provider's TLS token endpoint and was verified by the relying
// party during exchange, so an unverified parse for the timestamp is safe.
// Falls back to the access token expiry when the parse fails.
func idTokenExpiry(idToken string, fallback time.Time) time.Time {
	if idToken == "" {
		return fallback
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}
