// Package server exposes HTTP handlers, including WebSocket upgrades and
// health checks.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// authenticate checks the request's bearer token when a validator is
// configured and returns the user it was issued to, or 0 when auth is off.
// It writes a 401 and returns false on failure.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if s.validator == nil {
		return 0, true
	}

	uid, err := s.validator.Validate(r.Context(), bearerToken(r))
	if err != nil {
		s.logger.Warn("rejected WebSocket upgrade", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return 0, false
	}

	s.logger.Debug("authenticated WebSocket upgrade", slog.String("remote", r.RemoteAddr), slog.Int64("uid", uid))
	return uid, true
}

// bearerToken reads the token from the Authorization header, falling back to
// the token query parameter for browser clients that cannot set headers.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, authenticates it when required, upgrades the
// connection, pins the new Client to a worker and starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	if !s.started.Load() {
		http.Error(w, "Server is not accepting connections", http.StatusServiceUnavailable)
		return
	}

	uid, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", slog.String("remote", r.RemoteAddr), slog.Any("error", err))
		return
	}

	client := newClient(conn, r.RemoteAddr, &s.cfg, s.pool.assign(), s.clientClosed, s.logger)
	client.authUID = uid
	if !s.track(client) {
		_ = conn.Close()
		return
	}

	s.logger.Info("client connected",
		slog.String("client", client.ID()),
		slog.String("remote", client.addr),
		slog.Int("worker", client.worker.id),
		slog.Int64("auth_uid", uid),
		slog.Int("clients", s.ClientCount()))

	go func() {
		defer s.pumps.Done()
		client.writePump()
	}()
	go func() {
		defer s.pumps.Done()
		client.readPump()
	}()
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "relaychat is running")
}
