// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/aurras/internal/assistant"
	"github.com/mattjoyce/aurras/internal/history"
	"github.com/mattjoyce/aurras/internal/nlu"
	"github.com/mattjoyce/aurras/internal/plugin"
)

// Assistant answers prompts.
type Assistant interface {
	Respond(ctx context.Context, source, prompt string) assistant.Reply
	Classify(ctx context.Context, prompt string) (nlu.Classification, error)
}

// PluginRegistry lists loaded plugins.
type PluginRegistry interface {
	Get(name string) (*plugin.Descriptor, bool)
	All() []*plugin.Descriptor
	Intents() []string
}

// HistoryReader reads the turn transcript. It may be nil when history is
// disabled.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Turn, error)
	Get(ctx context.Context, id string) (history.Turn, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token required on every route except /healthz.
	// Empty leaves the API open, which is only sensible on a loopback listener.
	APIKey string
	// RequestsPerMin is the per-client budget. Zero disables rate limiting.
	RequestsPerMin int
	// MaxPromptBytes bounds request bodies.
	MaxPromptBytes int64
}

// Server represents the HTTP API server.
type Server struct {
	config    Config
	assistant Assistant
	registry  PluginRegistry
	history   HistoryReader
	limiter   *rateLimiter
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(config Config, a Assistant, registry PluginRegistry, hist HistoryReader, logger *slog.Logger) *Server {
	if config.MaxPromptBytes <= 0 {
		config.MaxPromptBytes = 64 << 10
	}
	s := &Server{
		config:    config,
		assistant: a,
		registry:  registry,
		history:   hist,
		logger:    logger,
		startedAt: time.Now(),
	}
	if config.RequestsPerMin > 0 {
		s.limiter = newRateLimiter(config.RequestsPerMin)
	}
	return s
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "auth", s.config.APIKey != "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler builds the route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Use(s.rateLimitMiddleware)
		r.Post("/ask", s.handleAsk)
		r.Post("/classify", s.handleClassify)
		r.Get("/plugins", s.handleListPlugins)
		r.Get("/plugins/{plugin}", s.handleGetPlugin)
		r.Get("/history", s.handleListHistory)
		r.Get("/history/{turnID}", s.handleGetTurn)
	})

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
