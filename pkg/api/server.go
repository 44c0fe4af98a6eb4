// Package api provides the operator-facing HTTP API: health probes and
// read-only status endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tgforge/tgforge/internal/logger"
	"github.com/tgforge/tgforge/pkg/migrate"
	"github.com/tgforge/tgforge/pkg/store"
)

// Status describes the running process for /api/v1/status.
type Status struct {
	Bot       string       `json:"bot"`
	Username  string       `json:"username,omitempty"`
	Phase     string       `json:"phase"`
	Uptime    string       `json:"uptime"`
	Users     *store.Stats `json:"users,omitempty"`
	AIEnabled bool         `json:"ai_enabled"`
}

// Deps are the collaborators the API reads from. Phase is a live
// callback into the orchestrator; the rest are the same handles the
// orchestrator owns.
type Deps struct {
	Store    *store.Store
	Migrator *migrate.Migrator
	Phase    func() string
	BotName  string
	Username func() string
	AI       bool
}

// Server serves the admin HTTP API.
type Server struct {
	server    *http.Server
	config    Config
	deps      Deps
	startedAt time.Time
}

// NewServer creates the API server in a stopped state.
func NewServer(config Config, deps Deps) *Server {
	config.ApplyDefaults()

	s := &Server{
		config:    config,
		deps:      deps,
		startedAt: time.Now(),
	}
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}

	logger.Info("API server stopped")
	return nil
}
