// Package api exposes the HTTP interface for the crawl service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cepcrawler/internal/cep"
	"cepcrawler/internal/crawl"
	"cepcrawler/internal/metrics"
	"cepcrawler/internal/store"
)

// CrawlService is the orchestration surface the handlers need.
type CrawlService interface {
	CreateCrawl(ctx context.Context, start, end string) (crawl.CreateResult, error)
	GetStatus(ctx context.Context, crawlID string) (cep.CrawlJob, error)
	GetResults(ctx context.Context, crawlID string, page, limit int) (crawl.ResultsPage, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wires HTTP handlers to the crawl service.
type Server struct {
	router  chi.Router
	service CrawlService
	pinger  Pinger
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(service CrawlService, pinger Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		service: service,
		pinger:  pinger,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Post("/crawl", s.createCrawl)
	r.Route("/crawl/{crawl_id}", func(r chi.Router) {
		r.Get("/", s.getCrawl)
		r.Get("/results", s.getResults)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.pinger.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createCrawlRequest struct {
	CEPStart string `json:"cep_start"`
	CEPEnd   string `json:"cep_end"`
}

func (s *Server) createCrawl(w http.ResponseWriter, r *http.Request) {
	var req createCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := s.service.CreateCrawl(r.Context(), req.CEPStart, req.CEPEnd)
	if err != nil {
		var domainErr *cep.Error
		if errors.As(err, &domainErr) {
			s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": domainErr})
			return
		}
		s.logger.Error("crawl submission failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusAccepted, res)
}

func (s *Server) getCrawl(w http.ResponseWriter, r *http.Request) {
	crawlID := chi.URLParam(r, "crawl_id")
	job, err := s.service.GetStatus(r.Context(), crawlID)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "crawl not found")
		return
	}
	if err != nil {
		s.logger.Error("status read failed", zap.String("crawl_id", crawlID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	crawlID := chi.URLParam(r, "crawl_id")
	page := queryInt(r, "page")
	limit := queryInt(r, "limit")

	results, err := s.service.GetResults(r.Context(), crawlID, page, limit)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "crawl not found")
		return
	}
	if err != nil {
		s.logger.Error("results read failed", zap.String("crawl_id", crawlID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, results)
}

// queryInt returns the named query parameter as an int, or zero when
// absent or unparseable. Zero defers to the service defaults.
func queryInt(r *http.Request, name string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
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
		s.logger.Info("request completed",
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
