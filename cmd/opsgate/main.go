// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Opsgate fronts the Lalaba admin console: it holds the operator's session
// with the identity provider, resolves the operator's role, and guards the
// console routes it proxies to the platform API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/lalaba-dev/opsgate/internal/config"
	"github.com/lalaba-dev/opsgate/internal/identity"
	"github.com/lalaba-dev/opsgate/internal/logging"
	"github.com/lalaba-dev/opsgate/internal/profile"
	"github.com/lalaba-dev/opsgate/internal/role"
	"github.com/lalaba-dev/opsgate/internal/rolecache"
	"github.com/lalaba-dev/opsgate/internal/router"
	"github.com/lalaba-dev/opsgate/internal/session"
	"github.com/lalaba-dev/opsgate/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("addr", cfg.Server.Address()).
		Str("identity_mode", cfg.Identity.Mode).
		Msg("Starting Opsgate")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Durable role cache.
	badgerOpts := badger.DefaultOptions(cfg.Cache.Path).WithLogger(nil)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.Cache.Path).Msg("Failed to open role cache")
	}
	defer db.Close()
	cache := rolecache.NewBadgerCache(db)

	// Identity source.
	var (
		src     identity.Source
		oidcSrc *identity.OIDCSource
		fakeSrc *identity.FakeSource
	)
	switch cfg.Identity.Mode {
	case "oidc":
		oidcSrc, err = identity.NewOIDCSource(ctx, identity.OIDCConfig{
			IssuerURL:         cfg.Identity.IssuerURL,
			ClientID:          cfg.Identity.ClientID,
			ClientSecret:      cfg.Identity.ClientSecret,
			RedirectURL:       cfg.Identity.RedirectURL,
			Scopes:            cfg.Identity.Scopes,
			PKCEEnabled:       cfg.Identity.PKCEEnabled,
			PostLoginRedirect: cfg.Identity.PostLoginRedirect,
		})
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize OIDC provider")
		}
		src = oidcSrc
	case "fake":
		logging.Warn().Msg("Using the in-memory identity source; for development only")
		fakeSrc = identity.NewFakeSource()
		src = fakeSrc
	default:
		logging.Fatal().Str("mode", cfg.Identity.Mode).Msg("Unknown identity mode")
	}

	// Profile record fallback, if a platform API is configured.
	var profiles profile.Store
	if cfg.Profile.BaseURL != "" {
		httpStore, err := profile.NewHTTPStore(profile.HTTPStoreConfig{
			BaseURL:          cfg.Profile.BaseURL,
			Timeout:          cfg.Profile.Timeout,
			BreakerThreshold: cfg.Profile.BreakerThreshold,
			BreakerCooldown:  cfg.Profile.BreakerCooldown,
		}, src)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize profile store")
		}
		profiles = httpStore
	} else {
		logging.Info().Msg("No profile API configured; roles resolve from token claims only")
	}

	resolver := role.NewResolver(src, profiles, role.WithRoleClaim(cfg.Identity.RoleClaim))
	store := session.NewStore(src, resolver, cache,
		session.WithResolveTimeout(cfg.Session.ResolveTimeout))

	rt := router.New(cfg, store, src, oidcSrc, fakeSrc)
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      rt.Handler(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddSessionService(store)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutting down")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor exited with error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Fatal().Err(err).Msg("Supervisor failed")
		}
	}

	logging.Info().Msg("Opsgate stopped")
}
