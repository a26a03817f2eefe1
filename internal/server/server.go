package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vijaykumawat897/capacitor-media-viewer/internal/media"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/session"
	"github.com/vijaykumawat897/capacitor-media-viewer/internal/viewer"
)

// maxPayload bounds a show request body.
const maxPayload = 1 << 20

// Server serves a debug bridge to a viewer
type Server struct {
	viewer     *viewer.Viewer
	port       int
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new HTTP server
func New(v *viewer.Viewer, port int, logger *slog.Logger) *Server {
	return &Server{
		viewer: v,
		port:   port,
		logger: logger,
	}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /state", s.handleState)
	mux.HandleFunc("GET /qualities", s.handleQualities)

	mux.HandleFunc("POST /show", s.handleShow)
	mux.HandleFunc("POST /dismiss", s.control(s.viewer.Dismiss))
	mux.HandleFunc("POST /play", s.control(s.viewer.Play))
	mux.HandleFunc("POST /pause", s.control(s.viewer.Pause))
	mux.HandleFunc("POST /next", s.control(s.viewer.Next))
	mux.HandleFunc("POST /previous", s.control(s.viewer.Previous))
	mux.HandleFunc("POST /retry", s.control(s.viewer.Retry))
	mux.HandleFunc("POST /seek", s.handleSeek)
	mux.HandleFunc("POST /quality", s.handleQuality)

	return s.loggingMiddleware(mux)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	// Start server in a goroutine
	go func() {
		s.logger.Info("starting HTTP server", "port", s.port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// handleHealth serves health check information
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "ok",
		"viewer": s.viewer.Status(),
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.viewer.PlaybackState()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleQualities(w http.ResponseWriter, r *http.Request) {
	qualities, err := s.viewer.AvailableQualities()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"qualities": qualities})
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	req, err := media.DecodeShowRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := s.viewer.Show(req); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var t *float64
	if raw := r.URL.Query().Get("time"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid time"})
			return
		}
		t = &v
	}
	s.control(func() error { return s.viewer.Seek(t) })(w, r)
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	s.control(func() error { return s.viewer.SetQuality(label) })(w, r)
}

func (s *Server) control(op func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := op(); err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// writeError maps viewer rejections to status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, viewer.ErrNotShowing),
		errors.Is(err, session.ErrRetriesExhausted):
		status = http.StatusConflict
	case errors.Is(err, viewer.ErrItemsRequired),
		errors.Is(err, viewer.ErrCurrentIndexRequired),
		errors.Is(err, viewer.ErrTimeRequired),
		errors.Is(err, viewer.ErrQualityRequired):
		status = http.StatusBadRequest
	case errors.Is(err, viewer.ErrPresentationUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("viewer operation failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap the response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
