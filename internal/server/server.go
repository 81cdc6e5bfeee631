// Package server exposes the published snapshot as a JSON query API for the dashboard.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tigerroll/covidash/internal/snapshot"
	"github.com/tigerroll/covidash/pkg/config"
	"github.com/tigerroll/covidash/pkg/support/logger"
)

// Refresher rebuilds and publishes a snapshot on demand.
type Refresher interface {
	Refresh(ctx context.Context) (*snapshot.Snapshot, error)
}

// Server serves the query API over HTTP.
type Server struct {
	cfg       config.ServerConfig
	store     *snapshot.Store
	refresher Refresher
	metrics   http.Handler
	router    *mux.Router

	httpServer *http.Server
}

// New creates a Server reading from store. refresher backs POST /api/refresh and
// metricsHandler backs GET /metrics; either may be nil to disable the route.
func New(cfg *config.Config, store *snapshot.Store, refresher Refresher, metricsHandler http.Handler) *Server {
	s := &Server{
		cfg:       cfg.Covidash.Server,
		store:     store,
		refresher: refresher,
		metrics:   metricsHandler,
		router:    mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSeconds) * time.Second,
	}
	logger.Infof("HTTP server listening on %s", ln.Addr())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones, bounded by
// the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if s.cfg.ShutdownTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
	}
	logger.Infof("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
