// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full Opsgate configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Identity IdentityConfig `koanf:"identity"`
	Profile  ProfileConfig  `koanf:"profile"`
	Cache    CacheConfig    `koanf:"cache"`
	Session  SessionConfig  `koanf:"session"`
	Routes   RoutesConfig   `koanf:"routes"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host    string        `koanf:"host" validate:"required"`
	Port    int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`
}

// IdentityConfig configures the identity provider connection.
// Mode "oidc" talks to a real provider; mode "fake" uses the in-memory
// source for local development.
type IdentityConfig struct {
	Mode              string   `koanf:"mode" validate:"oneof=oidc fake"`
	IssuerURL         string   `koanf:"issuer_url"`
	ClientID          string   `koanf:"client_id"`
	ClientSecret      string   `koanf:"client_secret"`
	RedirectURL       string   `koanf:"redirect_url"`
	Scopes            []string `koanf:"scopes"`
	PKCEEnabled       bool     `koanf:"pkce_enabled"`
	RoleClaim         string   `koanf:"role_claim" validate:"required"`
	PostLoginRedirect string   `koanf:"post_login_redirect" validate:"required"`
}

// ProfileConfig configures the fallback profile record source. An empty
// BaseURL disables the fallback; role resolution then relies on the token
// claim alone.
type ProfileConfig struct {
	BaseURL          string        `koanf:"base_url"`
	Timeout          time.Duration `koanf:"timeout" validate:"min=1s"`
	BreakerThreshold uint32        `koanf:"breaker_threshold" validate:"min=1"`
	BreakerCooldown  time.Duration `koanf:"breaker_cooldown" validate:"min=1s"`
}

// CacheConfig configures the durable role cache.
type CacheConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// SessionConfig configures the session store.
type SessionConfig struct {
	ResolveTimeout time.Duration `koanf:"resolve_timeout" validate:"min=1s"`
}

// RoutesConfig configures the guarded surface the gateway fronts.
type RoutesConfig struct {
	LoginPath        string        `koanf:"login_path" validate:"required,startswith=/"`
	UnauthorizedPath string        `koanf:"unauthorized_path" validate:"required,startswith=/"`
	UpstreamURL      string        `koanf:"upstream_url"`
	CORSOrigins      []string      `koanf:"cors_origins"`
	RateLimitReqs    int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow  time.Duration `koanf:"rate_limit_window" validate:"min=1s"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks that the configuration is complete and consistent.
// Struct tags cover the per-field rules; the cross-field rules that depend
// on the selected identity mode are checked by hand.
func (c *Config) Validate() error {
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config field %s failed rule %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config validation: %w", err)
	}

	if c.Identity.Mode == "oidc" {
		if err := c.validateOIDC(); err != nil {
			return err
		}
	}

	if c.Profile.BaseURL != "" {
		if err := validateHTTPURL(c.Profile.BaseURL, "PROFILE_API_URL"); err != nil {
			return err
		}
	}
	if c.Routes.UpstreamURL != "" {
		if err := validateHTTPURL(c.Routes.UpstreamURL, "UPSTREAM_URL"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateOIDC() error {
	if c.Identity.IssuerURL == "" {
		return fmt.Errorf("OIDC_ISSUER_URL is required when IDENTITY_MODE=oidc")
	}
	if err := validateHTTPURL(c.Identity.IssuerURL, "OIDC_ISSUER_URL"); err != nil {
		return err
	}
	if c.Identity.ClientID == "" {
		return fmt.Errorf("OIDC_CLIENT_ID is required when IDENTITY_MODE=oidc")
	}
	if c.Identity.RedirectURL == "" {
		return fmt.Errorf("OIDC_REDIRECT_URL is required when IDENTITY_MODE=oidc")
	}
	return nil
}

func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}

// Address returns the host:port the HTTP server binds to.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Redacted returns a copy safe for logging, with secrets blanked.
func (c *Config) Redacted() Config {
	out := *c
	if out.Identity.ClientSecret != "" {
		out.Identity.ClientSecret = strings.Repeat("*", 8)
	}
	return out
}
