// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeModeEnv switches tests to the fake identity source so no OIDC
// settings are required.
func fakeModeEnv(t *testing.T) {
	t.Helper()
	t.Setenv("IDENTITY_MODE", "fake")
}

func TestLoadDefaults(t *testing.T) {
	fakeModeEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8750 {
		t.Errorf("Server.Port = %d, want 8750", cfg.Server.Port)
	}
	if cfg.Routes.LoginPath != "/" {
		t.Errorf("Routes.LoginPath = %q, want %q", cfg.Routes.LoginPath, "/")
	}
	if cfg.Routes.UnauthorizedPath != "/error/unauthorized" {
		t.Errorf("Routes.UnauthorizedPath = %q, want %q", cfg.Routes.UnauthorizedPath, "/error/unauthorized")
	}
	if cfg.Identity.RoleClaim != "role" {
		t.Errorf("Identity.RoleClaim = %q, want %q", cfg.Identity.RoleClaim, "role")
	}
	if cfg.Session.ResolveTimeout != 15*time.Second {
		t.Errorf("Session.ResolveTimeout = %s, want 15s", cfg.Session.ResolveTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	fakeModeEnv(t)
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("PROFILE_API_URL", "https://api.lalaba.ph")
	t.Setenv("CORS_ORIGINS", "https://admin.lalaba.ph, https://staging.lalaba.ph")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Profile.BaseURL != "https://api.lalaba.ph" {
		t.Errorf("Profile.BaseURL = %q", cfg.Profile.BaseURL)
	}
	want := []string{"https://admin.lalaba.ph", "https://staging.lalaba.ph"}
	if len(cfg.Routes.CORSOrigins) != len(want) {
		t.Fatalf("CORSOrigins = %v, want %v", cfg.Routes.CORSOrigins, want)
	}
	for i := range want {
		if cfg.Routes.CORSOrigins[i] != want[i] {
			t.Errorf("CORSOrigins[%d] = %q, want %q", i, cfg.Routes.CORSOrigins[i], want[i])
		}
	}
}

func TestLoadConfigFile(t *testing.T) {
	fakeModeEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 8100
routes:
  unauthorized_path: /denied
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8100 {
		t.Errorf("Server.Port = %d, want 8100", cfg.Server.Port)
	}
	if cfg.Routes.UnauthorizedPath != "/denied" {
		t.Errorf("Routes.UnauthorizedPath = %q, want %q", cfg.Routes.UnauthorizedPath, "/denied")
	}
}

func TestLoadEnvBeatsFile(t *testing.T) {
	fakeModeEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 8100\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 (env should beat file)", cfg.Server.Port)
	}
}

func TestValidateOIDCRequirements(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "oidc mode requires issuer",
			mutate:  func(c *Config) { c.Identity.Mode = "oidc" },
			wantErr: "OIDC_ISSUER_URL",
		},
		{
			name: "oidc mode requires client id",
			mutate: func(c *Config) {
				c.Identity.Mode = "oidc"
				c.Identity.IssuerURL = "https://auth.lalaba.ph"
			},
			wantErr: "OIDC_CLIENT_ID",
		},
		{
			name: "oidc mode requires redirect url",
			mutate: func(c *Config) {
				c.Identity.Mode = "oidc"
				c.Identity.IssuerURL = "https://auth.lalaba.ph"
				c.Identity.ClientID = "opsgate"
			},
			wantErr: "OIDC_REDIRECT_URL",
		},
		{
			name: "fake mode needs no provider settings",
			mutate: func(c *Config) {
				c.Identity.Mode = "fake"
			},
		},
		{
			name: "bad log level rejected",
			mutate: func(c *Config) {
				c.Identity.Mode = "fake"
				c.Logging.Level = "verbose"
			},
			wantErr: "Logging.Level",
		},
		{
			name: "profile url must be http",
			mutate: func(c *Config) {
				c.Identity.Mode = "fake"
				c.Profile.BaseURL = "ftp://files.lalaba.ph"
			},
			wantErr: "PROFILE_API_URL",
		},
		{
			name: "unauthorized path must be absolute",
			mutate: func(c *Config) {
				c.Identity.Mode = "fake"
				c.Routes.UnauthorizedPath = "error/unauthorized"
			},
			wantErr: "UnauthorizedPath",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate returned nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestRedactedHidesSecret(t *testing.T) {
	cfg := defaultConfig()
	cfg.Identity.ClientSecret = "super-secret"

	red := cfg.Redacted()
	if strings.Contains(red.Identity.ClientSecret, "super") {
		t.Errorf("Redacted leaked client secret: %q", red.Identity.ClientSecret)
	}
	if cfg.Identity.ClientSecret != "super-secret" {
		t.Error("Redacted mutated the original config")
	}
}
