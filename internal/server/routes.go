// Package server wires HTTP handlers into a ServeMux for the relaychat
// application via routing helpers.
package server

import "net/http"

// setupRoutes configures the ServeMux with the health check and the
// configured WebSocket path.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", HealthHandler)
	mux.HandleFunc(s.cfg.Path, s.WebSocketHandler)
	return mux
}
