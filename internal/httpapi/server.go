// Package httpapi exposes the relay's HTTP surface: the two liveness
// probes, the Prometheus scrape endpoint, and the websocket upgrade
// entrypoint, wired through the same mux.Router + middleware chain
// pattern the rest of the fleet stack uses.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/fleetrelay/internal/registry"
)

// Upgrader is the websocket entrypoint surface (transport.Manager).
type Upgrader interface {
	Upgrade(w http.ResponseWriter, r *http.Request)
}

type Server struct {
	reg       *registry.Registry
	upgrader  Upgrader
	logger    *slog.Logger
	startedAt time.Time
	router    *mux.Router
}

func NewServer(reg *registry.Registry, upgrader Upgrader, logger *slog.Logger, startedAt time.Time) *Server {
	s := &Server{reg: reg, upgrader: upgrader, logger: logger, startedAt: startedAt, router: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "running",
		"drivers": s.reg.LiveDriverCount(),
		"uptime":  int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.upgrader.Upgrade(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
