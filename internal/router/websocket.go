// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package router

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lalaba-dev/opsgate/internal/session"
)

const (
	wsWriteTimeout     = 10 * time.Second
	wsHandshakeTimeout = 10 * time.Second
)

func (rt *Router) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      rt.checkWebSocketOrigin,
		HandshakeTimeout: wsHandshakeTimeout,
	}
}

// checkWebSocketOrigin validates connection origins against the configured
// CORS origins. Browser WebSockets always carry an Origin header; a missing
// one means a non-browser client and is rejected.
func (rt *Router) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		rt.log.Warn().Msg("websocket connection rejected: missing Origin header")
		return false
	}
	for _, allowed := range rt.cfg.Routes.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	rt.log.Warn().Str("origin", origin).Msg("websocket connection rejected: origin not allowed")
	return false
}

// watchSession streams session snapshots over a WebSocket: the current
// snapshot on connect, then one message per committed transition. Clients
// use this instead of polling GET /session.
func (rt *Router) watchSession(w http.ResponseWriter, r *http.Request) {
	up := rt.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		rt.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Buffered so a slow client drops intermediate states rather than
	// blocking the session store's commit path.
	updates := make(chan session.Snapshot, 8)
	cancel := rt.store.Subscribe(func(snap session.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer cancel()

	// Reader discards inbound messages and signals when the peer goes away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeView := func(snap session.Snapshot) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(viewOf(snap))
	}

	if err := writeView(rt.store.Snapshot()); err != nil {
		return
	}
	for {
		select {
		case snap := <-updates:
			if err := writeView(snap); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
