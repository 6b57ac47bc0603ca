package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/contact-import/internal/config"
)

// Server is the import API's HTTP server.
type Server struct {
	config config.ServerConfig
	router *chi.Mux
	server *http.Server
}

// NewServer builds the router for the batch and external import handlers.
func NewServer(cfg config.ServerConfig, h *Handlers, health *HealthChecker) *Server {
	return &Server{
		config: cfg,
		router: SetupRoutes(h, health, cfg.AllowedOrigins),
	}
}

// ListenAndServe serves until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// Uploads and commits of large files take minutes.
		ReadTimeout:       5 * time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
