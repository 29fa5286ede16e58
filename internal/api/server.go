// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/venue-crawler/internal/config"
	"github.com/JakeFAU/venue-crawler/internal/crawler"
	"github.com/JakeFAU/venue-crawler/internal/metrics"
	"github.com/JakeFAU/venue-crawler/internal/pipeline"
	"github.com/JakeFAU/venue-crawler/internal/pool"
	"github.com/JakeFAU/venue-crawler/internal/store"
)

// PipelineRunner runs full crawls. *pipeline.Runner satisfies it.
type PipelineRunner interface {
	NewRunID() (uuid.UUID, error)
	RunWithID(ctx context.Context, runID uuid.UUID, seedURL string, includeSubdomains bool) (pipeline.Result, error)
}

// Deps are the collaborators behind the HTTP handlers.
type Deps struct {
	Pipeline PipelineRunner
	// Tasks executes single discovery and extraction requests.
	Tasks   pipeline.TaskRunner
	Runs    store.RunRepository
	Metrics *metrics.Collectors
	Logger  *zap.Logger
}

// Server wires HTTP handlers to the pipeline and run store.
type Server struct {
	router   chi.Router
	pipeline PipelineRunner
	tasks    pipeline.TaskRunner
	progress *ProgressHandler
	logger   *zap.Logger
	cfg      config.ServerConfig

	// runCtx outlives requests so accepted pipeline runs keep going.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runs      sync.WaitGroup
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.ServerConfig) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		pipeline:  deps.Pipeline,
		tasks:     deps.Tasks,
		progress:  NewProgressHandler(deps.Runs, logger),
		logger:    logger,
		cfg:       cfg,
		runCtx:    runCtx,
		cancelRun: cancel,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Post("/discover", s.discover)
		r.Post("/extract", s.extract)
		r.Post("/pipeline", s.submitPipeline)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.progress.ListRuns)
			r.Route("/{run_id}", func(r chi.Router) {
				r.Get("/", s.progress.GetRun)
				r.Get("/events", s.progress.ListRunEvents)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Shutdown cancels accepted pipeline runs and waits for them until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelRun()
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for pipeline runs: %w", ctx.Err())
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.pipeline == nil || s.tasks == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	if s.runCtx.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type crawlRequest struct {
	URL               string `json:"url"`
	IncludeSubdomains bool   `json:"includeSubdomains"`
	// SeedURL scopes a single-page extraction; it defaults to URL.
	SeedURL string `json:"seedUrl,omitempty"`
}

func decodeCrawlRequest(r *http.Request) (crawlRequest, *crawler.ScopeConfig, error) {
	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, nil, errors.New("invalid JSON")
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return req, nil, errors.New("url required")
	}
	normalized, err := crawler.NormalizeURL(req.URL)
	if err != nil {
		return req, nil, fmt.Errorf("invalid url: %w", err)
	}
	req.URL = normalized
	seed := req.SeedURL
	if seed == "" {
		seed = req.URL
	}
	scope, err := crawler.NewScope(seed, req.IncludeSubdomains)
	if err != nil {
		return req, nil, fmt.Errorf("invalid scope: %w", err)
	}
	return req, scope, nil
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	req, scope, err := decodeCrawlRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := s.runSingle(w, r, crawler.Task{URL: req.URL, Scope: scope, Kind: crawler.KindDiscovery})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Discovery)
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	req, scope, err := decodeCrawlRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !scope.Contains(req.URL) {
		writeError(w, http.StatusBadRequest, "url is outside the seed scope")
		return
	}
	res, ok := s.runSingle(w, r, crawler.Task{URL: req.URL, Scope: scope, Kind: crawler.KindPageExtraction})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, res.Page)
}

// runSingle executes one task and writes the error response itself when the
// task could not run at all.
func (s *Server) runSingle(w http.ResponseWriter, r *http.Request, task crawler.Task) (crawler.WorkerResult, bool) {
	if s.tasks == nil || s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return crawler.WorkerResult{}, false
	}
	runID, err := s.pipeline.NewRunID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return crawler.WorkerResult{}, false
	}
	results, err := s.tasks.Run(r.Context(), runID, []crawler.Task{task})
	var launchErr *pool.LaunchError
	switch {
	case errors.As(err, &launchErr):
		writeError(w, http.StatusServiceUnavailable, launchErr.Error())
		return crawler.WorkerResult{}, false
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return crawler.WorkerResult{}, false
	case len(results) != 1:
		writeError(w, http.StatusInternalServerError, "no result")
		return crawler.WorkerResult{}, false
	}
	return results[0], true
}

func (s *Server) submitPipeline(w http.ResponseWriter, r *http.Request) {
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	req, _, err := decodeCrawlRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.runCtx.Err() != nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}
	runID, err := s.pipeline.NewRunID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if _, err := s.pipeline.RunWithID(s.runCtx, runID, req.URL, req.IncludeSubdomains); err != nil {
			s.logger.Warn("pipeline run failed", zap.String("run_id", runID.String()), zap.Error(err))
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID.String()})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestID returns the request ID stored by the middleware, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
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

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
