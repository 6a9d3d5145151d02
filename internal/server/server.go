// Package server provides the HTTP surface of SquatCoach: health, the
// annotated MJPEG stream, live feedback over WebSocket, session control,
// the profile API and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/logging"
	"github.com/ayusman/squatcoach/internal/server/api"
	"github.com/ayusman/squatcoach/internal/store"
	"github.com/ayusman/squatcoach/internal/thresholds"
)

// Pipeline is the live analysis the server exposes. *app.App implements it.
type Pipeline interface {
	Snapshot() app.Snapshot
	Frame() []byte
	Reset() (string, error)
	SetThresholds(th thresholds.Thresholds) (string, error)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Pipeline  Pipeline
	// Metrics serves /metrics when set, usually promhttp.HandlerFor.
	Metrics http.Handler
	Logger  *slog.Logger

	// StreamInterval is how often stream and feedback clients are polled
	// for new frames. Defaults to 66ms (~15 FPS).
	StreamInterval time.Duration
}

// Server represents the HTTP server for SquatCoach.
type Server struct {
	config   Config
	mux      *http.ServeMux
	start    time.Time
	logger   *slog.Logger
	feedback *FeedbackHandler
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}
	if config.StreamInterval <= 0 {
		config.StreamInterval = 66 * time.Millisecond
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: config.Logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		var activator api.Activator
		if s.config.Pipeline != nil {
			activator = s.config.Pipeline
		}
		profiles := api.NewProfileHandler(s.config.Store, activator, s.logger)
		s.mux.Handle("/api/profiles", profiles)
		s.mux.Handle("/api/profiles/", profiles)
	}

	if p := s.config.Pipeline; p != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(p, s.config.StreamInterval))
		s.feedback = NewFeedbackHandler(p, s.config.StreamInterval, s.logger)
		s.mux.Handle("/api/feedback", s.feedback)
		s.mux.HandleFunc("/api/session", s.handleSession)
		s.mux.HandleFunc("/api/session/reset", s.handleReset)
	}

	if s.config.Metrics != nil {
		s.mux.Handle("/metrics", s.config.Metrics)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Close stops the feedback broadcaster and disconnects its clients.
func (s *Server) Close() {
	if s.feedback != nil {
		s.feedback.Close()
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleSession handles GET /api/session.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Pipeline.Snapshot())
}

// handleReset handles POST /api/session/reset.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := s.config.Pipeline.Reset()
	if err != nil {
		s.logger.Error("resetting session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to reset session"})
		return
	}

	s.logger.Info("session reset", "session", id)
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": id})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Run serves on addr until ctx is cancelled, then shuts down. Streaming
// handlers observe ctx through their request contexts.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown did not complete", "error", err)
		return srv.Close()
	}
	s.logger.Info("http server stopped")
	return nil
}
