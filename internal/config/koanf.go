// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/opsgate/config.yaml",
	"/etc/opsgate/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all defaults applied. Defaults load
// first, then the config file, then environment variables.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8750,
			Timeout: 30 * time.Second,
		},
		Identity: IdentityConfig{
			Mode:              "oidc",
			Scopes:            []string{"openid", "profile", "email"},
			PKCEEnabled:       true,
			RoleClaim:         "role",
			PostLoginRedirect: "/",
		},
		Profile: ProfileConfig{
			BaseURL:          "",
			Timeout:          10 * time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Cache: CacheConfig{
			Path: "/data/opsgate/cache",
		},
		Session: SessionConfig{
			ResolveTimeout: 15 * time.Second,
		},
		Routes: RoutesConfig{
			LoginPath:        "/",
			UnauthorizedPath: "/error/unauthorized",
			UpstreamURL:      "",
			CORSOrigins:      []string{"*"},
			RateLimitReqs:    100,
			RateLimitWindow:  time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths lists the config paths parsed as comma-separated slices
// when they arrive via environment variables.
var sliceConfigPaths = []string{
	"identity.scopes",
	"routes.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// the known slice fields. Env vars arrive as strings; YAML arrives as
// slices already.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped, so unrelated environment
// noise never reaches the config.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		// Identity provider
		"identity_mode":       "identity.mode",
		"oidc_issuer_url":     "identity.issuer_url",
		"oidc_client_id":      "identity.client_id",
		"oidc_client_secret":  "identity.client_secret",
		"oidc_redirect_url":   "identity.redirect_url",
		"oidc_scopes":         "identity.scopes",
		"oidc_pkce_enabled":   "identity.pkce_enabled",
		"role_claim":          "identity.role_claim",
		"post_login_redirect": "identity.post_login_redirect",

		// Profile record source
		"profile_api_url":           "profile.base_url",
		"profile_api_timeout":       "profile.timeout",
		"profile_breaker_threshold": "profile.breaker_threshold",
		"profile_breaker_cooldown":  "profile.breaker_cooldown",

		// Durable role cache
		"cache_path": "cache.path",

		// Session store
		"session_resolve_timeout": "session.resolve_timeout",

		// Routes
		"login_path":          "routes.login_path",
		"unauthorized_path":   "routes.unauthorized_path",
		"upstream_url":        "routes.upstream_url",
		"cors_origins":        "routes.cors_origins",
		"rate_limit_requests": "routes.rate_limit_reqs",
		"rate_limit_window":   "routes.rate_limit_window",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
