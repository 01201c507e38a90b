package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/harper/dispatch/internal/eventstore"
	"github.com/harper/dispatch/internal/serverdb"
	"github.com/harper/dispatch/internal/storage"
)

// Server is the dispatchd HTTP API server.
type Server struct {
	config      Config
	http        *http.Server
	store       *serverdb.ServerDB
	events      eventstore.Store
	avatars     *storage.AvatarStore
	hub         *streamHub
	metrics     *Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
}

// NewServer creates a Server over the given control-plane store and event
// log backend. The avatar store lives under the config's data directory.
func NewServer(cfg Config, store *serverdb.ServerDB, events eventstore.Store) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}

	avatars, err := storage.NewAvatarStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		store:       store,
		events:      events,
		avatars:     avatars,
		hub:         newStreamHub(),
		metrics:     NewMetrics(),
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     s.routes(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: SSE streams stay open indefinitely. Slow
		// non-stream responses are bounded by the handler work itself.
		IdleTimeout: 120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	// Janitor: prune stale rate-limit buckets and aged rate-limit events.
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("janitor panic", "panic", r)
			}
		}()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.Cleanup()
				n, err := s.store.CleanupRateLimitEvents(s.config.RateLimitEventRetention)
				if err != nil {
					slog.Error("cleanup rate limit events", "err", err)
				} else if n > 0 {
					slog.Info("cleaned up rate limit events", "count", n)
				}
			}
		}
	}()

	return nil
}

// Shutdown gracefully stops the server and closes the event log backend.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.http.Shutdown(ctx)
	if cerr := s.events.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Handler returns the server's HTTP handler, for tests that want to run it
// under httptest.
func (s *Server) Handler() http.Handler {
	return s.routes()
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// Sync
	mux.HandleFunc("POST /v1/teams/{team}/sync/push", s.requireTeamAuth(s.withRateLimit(s.handleSyncPush, s.config.RateLimitPush)))
	mux.HandleFunc("GET /v1/teams/{team}/sync/pull", s.requireTeamAuth(s.withRateLimit(s.handleSyncPull, s.config.RateLimitPull)))
	mux.HandleFunc("GET /v1/teams/{team}/sync/status", s.requireTeamAuth(s.withRateLimit(s.handleSyncStatus, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/teams/{team}/sync/snapshot", s.requireTeamAuth(s.withRateLimit(s.handleSyncSnapshot, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/teams/{team}/sync/stream", s.requireTeamAuth(s.withRateLimit(s.handleSyncStream, s.config.RateLimitOther)))

	// Storage
	mux.HandleFunc("POST /v1/teams/{team}/storage/avatars/{user}", s.requireTeamAuth(s.withRateLimit(s.handleAvatarUpload, s.config.RateLimitOther)))
	mux.HandleFunc("GET /v1/teams/{team}/storage/avatars/{user}", s.requireTeamAuth(s.withRateLimit(s.handleAvatarGet, s.config.RateLimitOther)))

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(10<<20), s.CORSMiddleware)
}

// handleHealth returns a health check response, pinging the control-plane DB.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
