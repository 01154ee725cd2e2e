// Package server exposes the coordinator over HTTP. It carries two
// surfaces on one listener: the sprite-facing reporting API that sprites
// call from inside their machines, and the operator API used by swarmctl
// to spawn sprites, submit work, and inspect tenants.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/highera/swarm/internal/logging"
	"github.com/highera/swarm/internal/state"
	"github.com/highera/swarm/internal/swarm"
)

// Server is the coordinator's HTTP server.
type Server struct {
	addr  string
	coord *swarm.Coordinator
	store state.Store
	log   *logging.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	started  bool
}

// Config holds server configuration options.
type Config struct {
	Addr string
}

// NewServer creates a Server for the given coordinator. The store is
// used directly for the tenant-admin surface the coordinator does not
// own.
func NewServer(cfg *Config, coord *swarm.Coordinator, store state.Store) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if coord == nil {
		return nil, errors.New("coordinator is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	return &Server{
		addr:  addr,
		coord: coord,
		store: store,
		log:   logging.With("component", "server"),
	}, nil
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info("listening", "addr", listener.Addr().String())
	err = s.server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.started = false
	return nil
}

// ListenAddr returns the actual address the server is listening on.
// Useful when port 0 is used to get an available port.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the server's routed handler without starting a
// listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return mux
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	// Sprite-facing reporting surface.
	mux.HandleFunc("GET /tenants/{tenant}/brand", s.handleGetBrand)
	mux.HandleFunc("PATCH /tenants/{tenant}/sprites/{sprite}", s.handleSpriteStatus)
	mux.HandleFunc("POST /tenants/{tenant}/sprites/{sprite}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /tenants/{tenant}/sprites/{sprite}/pong", s.handlePong)
	mux.HandleFunc("POST /tenants/{tenant}/work/{work}/complete", s.handleWorkComplete)
	mux.HandleFunc("POST /tenants/{tenant}/work/{work}/fail", s.handleWorkFailed)
	mux.HandleFunc("POST /tenants/{tenant}/handoffs", s.handleHandoff)
	mux.HandleFunc("POST /tenants/{tenant}/reviews", s.handleReview)

	// Operator surface.
	mux.HandleFunc("GET /tenants/{tenant}/status", s.handleTenantStatus)
	mux.HandleFunc("POST /tenants/{tenant}/sprites", s.handleSpawnSprite)
	mux.HandleFunc("POST /tenants/{tenant}/sprites/{sprite}/stop", s.handleStopSprite)
	mux.HandleFunc("POST /tenants/{tenant}/work", s.handleSubmitWork)
	mux.HandleFunc("GET /tenants/{tenant}/work/{work}", s.handleGetWork)
	mux.HandleFunc("POST /tenants/{tenant}/projects", s.handleStartProject)

	// Tenant administration.
	mux.HandleFunc("PUT /tenants/{tenant}", s.handlePutTenant)
	mux.HandleFunc("PUT /tenants/{tenant}/brand", s.handlePutBrand)
	mux.HandleFunc("POST /tenants/{tenant}/usage/reset", s.handleResetUsage)
}
