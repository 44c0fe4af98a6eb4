package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tgforge/tgforge/internal/logger"
)

// router builds the chi router.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe (store + schema)
//   - GET /api/v1/status - Process status snapshot
//   - GET /api/v1/migrations - Schema revision state
func (s *Server) router() http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/health", func(r chi.Router) {
		r.Get("/", s.handleLiveness)
		r.Get("/ready", s.handleReadiness)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/migrations", s.handleMigrations)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs each request with method, path, status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Debug("API request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadiness reports ready only when the store answers and the
// schema has no pending migrations.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if s.deps.Store == nil || s.deps.Store.DB() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "store not connected",
		})
		return
	}
	if _, err := s.deps.Store.CountUsers(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": "store query failed",
		})
		return
	}

	if s.deps.Migrator != nil {
		pending, err := s.deps.Migrator.HasPending(ctx)
		if err != nil || pending {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"reason": "schema not at head",
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Bot:       s.deps.BotName,
		Phase:     "unknown",
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		AIEnabled: s.deps.AI,
	}
	if s.deps.Phase != nil {
		status.Phase = s.deps.Phase()
	}
	if s.deps.Username != nil {
		status.Username = s.deps.Username()
	}
	if s.deps.Store != nil && s.deps.Store.DB() != nil {
		if stats, err := s.deps.Store.GetStats(r.Context()); err == nil {
			status.Users = stats
		}
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleMigrations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Migrator == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "migrations not managed"})
		return
	}

	status, err := s.deps.Migrator.Status(r.Context())
	if err != nil {
		logger.Warn("Failed to read migration status", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read migration status"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode API response", "error", err)
	}
}
