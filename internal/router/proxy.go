// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package router

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// upstreamHandler builds the handler the guarded routes delegate to: a
// reverse proxy to the upstream platform API with the operator's bearer
// token attached. The role prefix (/admin, /employee) is authorization
// scoping only and is stripped before forwarding.
func (rt *Router) upstreamHandler() http.Handler {
	if rt.cfg.Routes.UpstreamURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "no upstream configured",
			})
		})
	}

	target, err := url.Parse(rt.cfg.Routes.UpstreamURL)
	if err != nil {
		// Load-time validation rejects malformed upstream URLs; reaching
		// this means the config was bypassed.
		rt.log.Error().Err(err).Msg("invalid upstream URL")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "upstream misconfigured",
			})
		})
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.URL.Path = stripRolePrefix(pr.In.URL.Path)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			rt.log.Error().Err(err).Str("path", r.URL.Path).Msg("upstream request failed")
			respondJSON(w, http.StatusBadGateway, map[string]string{
				"error": "upstream unavailable",
			})
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := rt.src.Token(r.Context(), false)
		if err != nil {
			rt.log.Warn().Err(err).Msg("no credential available for upstream request")
			respondJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "session credential unavailable",
			})
			return
		}
		r.Header.Set("Authorization", "Bearer "+token)
		proxy.ServeHTTP(w, r)
	})
}

// stripRolePrefix removes the leading role segment from a guarded path,
// so /admin/orders and /employee/orders both forward as /orders.
func stripRolePrefix(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		return trimmed[i:]
	}
	return "/"
}
