// Package api exposes the harvester's read-only HTTP status interface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/crawler"
	"github.com/JakeFAU/standards-harvester/internal/eventlog"
	"github.com/JakeFAU/standards-harvester/internal/metrics"
)

const (
	defaultDownloadsLimit = 50
	maxDownloadsLimit     = 1000
)

// StatsProvider reports the live crawl session.
type StatsProvider interface {
	Stats() crawler.Stats
}

// QueueLengther reports the frontier depth.
type QueueLengther interface {
	Len(ctx context.Context) (int64, error)
}

// Server wires HTTP handlers to the running session and its stores.
type Server struct {
	router    chi.Router
	session   StatsProvider
	downloads eventlog.Reader
	frontier  QueueLengther
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. downloads may be
// nil when no readable event log is configured.
func NewServer(
	session StatsProvider,
	downloads eventlog.Reader,
	frontier QueueLengther,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		session:   session,
		downloads: downloads,
		frontier:  frontier,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/downloads", s.listDownloads)
		r.Get("/frontier", s.frontierDepth)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.frontier != nil {
		if _, err := s.frontier.Len(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "frontier unavailable")
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	if s.session == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no active session")
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Stats())
}

func (s *Server) listDownloads(w http.ResponseWriter, r *http.Request) {
	if s.downloads == nil {
		s.writeError(w, http.StatusNotFound, "download log is not readable")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.downloads.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list downloads failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list downloads")
		return
	}
	if entries == nil {
		entries = []eventlog.Entry{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"downloads": entries, "count": len(entries)})
}

func (s *Server) frontierDepth(w http.ResponseWriter, r *http.Request) {
	if s.frontier == nil {
		s.writeError(w, http.StatusServiceUnavailable, "frontier unavailable")
		return
	}
	n, err := s.frontier.Len(r.Context())
	if err != nil {
		s.logger.Error("frontier length failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read frontier")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int64{"pending": n})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultDownloadsLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxDownloadsLimit {
		n = maxDownloadsLimit
	}
	return n, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
