// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

// Package router assembles the HTTP surface of the gateway: session
// endpoints, the identity provider's login flow, and the guarded console
// routes proxied to the upstream platform API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lalaba-dev/opsgate/internal/config"
	"github.com/lalaba-dev/opsgate/internal/guard"
	"github.com/lalaba-dev/opsgate/internal/identity"
	"github.com/lalaba-dev/opsgate/internal/logging"
	"github.com/lalaba-dev/opsgate/internal/role"
	"github.com/lalaba-dev/opsgate/internal/session"
)

// Router builds the gateway's HTTP handler.
type Router struct {
	cfg   *config.Config
	store *session.Store
	src   identity.Source
	oidc  *identity.OIDCSource
	fake  *identity.FakeSource
	guard *guard.Middleware
	log   zerolog.Logger
}

// New creates a Router. oidc carries the provider's login and callback
// handlers and is nil in fake mode; fake is non-nil only in fake mode and
// enables the development sign-in endpoint.
func New(cfg *config.Config, store *session.Store, src identity.Source, oidc *identity.OIDCSource, fake *identity.FakeSource) *Router {
	return &Router{
		cfg:   cfg,
		store: store,
		src:   src,
		oidc:  oidc,
		fake:  fake,
		guard: guard.NewMiddleware(store, cfg.Routes.LoginPath, cfg.Routes.UnauthorizedPath),
		log:   logging.With().Str("component", "router").Logger(),
	}
}

// Handler assembles the chi route tree.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.cfg.Routes.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	r.Get("/healthz", rt.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get(rt.cfg.Routes.UnauthorizedPath, rt.unauthorized)

	r.Route("/auth", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.cfg.Routes.RateLimitReqs, rt.cfg.Routes.RateLimitWindow))
		if rt.oidc != nil {
			r.Get("/login", rt.oidc.HandleLogin)
			r.Get("/callback", rt.oidc.HandleCallback)
		}
		if rt.fake != nil {
			r.Post("/dev/signin", rt.devSignIn)
		}
	})

	r.Route("/session", func(r chi.Router) {
		r.Use(httprate.LimitByIP(rt.cfg.Routes.RateLimitReqs, rt.cfg.Routes.RateLimitWindow))
		r.Get("/", rt.getSession)
		r.Post("/logout", rt.logout)
		r.Post("/retry", rt.retry)
		r.Get("/watch", rt.watchSession)
	})

	// Guarded console surface. Each subtree proxies to the upstream
	// platform API with the operator's bearer token attached.
	upstream := rt.upstreamHandler()
	r.Route("/admin", func(r chi.Router) {
		r.Use(rt.guard.Require(role.NewSet(role.RoleAdmin)))
		r.Handle("/*", upstream)
	})
	r.Route("/employee", func(r chi.Router) {
		r.Use(rt.guard.Require(role.NewSet(role.RoleAdmin, role.RoleEmployee)))
		r.Handle("/*", upstream)
	})

	return r
}
