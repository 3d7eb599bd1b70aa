// Package server exposes the read-only episode API over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"papercast/internal/catalog"
	"papercast/internal/config"
	"papercast/internal/logging"
	"papercast/internal/podcast"
	"papercast/internal/services"
)

// HealthChecker reports readiness of a backing dependency.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Server serves the episode catalog read API.
type Server struct {
	repo   *catalog.Repository
	health HealthChecker
	logger *slog.Logger
	http   *http.Server
}

// New builds the API server bound to the configured address.
func New(cfg *config.Config, repo *catalog.Repository, health HealthChecker, logger *slog.Logger) (*Server, error) {
	if repo == nil {
		return nil, errors.New("server requires a repository")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{repo: repo, health: health, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/episodes", srv.handleListEpisodes)
	mux.HandleFunc("GET /api/episodes/latest", srv.handleLatestEpisode)
	mux.HandleFunc("GET /api/episodes/{id}", srv.handleGetEpisode)
	mux.HandleFunc("GET /api/health", srv.handleHealth)

	srv.http = &http.Server{
		Addr:              cfg.Paths.APIBind,
		Handler:           srv.withRequestLog(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving requests until the context is cancelled,
// then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", logging.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

type episodesResponse struct {
	Episodes []*podcast.Episode `json:"episodes"`
	Total    int                `json:"total"`
	Offset   int                `json:"offset"`
	Limit    int                `json:"limit"`
}

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	if limit > 100 {
		limit = 100
	}

	page, err := s.repo.FindPage(r.Context(), offset, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, episodesResponse{
		Episodes: page.Episodes,
		Total:    page.Total,
		Offset:   page.Offset,
		Limit:    page.Limit,
	})
}

func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	episode, err := s.repo.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, episode)
}

func (s *Server) handleLatestEpisode(w http.ResponseWriter, r *http.Request) {
	episode, err := s.repo.FindLatest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, episode)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK
	if s.health != nil {
		if err := s.health.CheckHealth(r.Context()); err != nil {
			status["status"] = "degraded"
			status["detail"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(value); err != nil {
		s.logger.Warn("encode response failed", logging.Error(err))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, services.ErrUnavailable), errors.Is(err, services.ErrTransient):
		code = http.StatusServiceUnavailable
	}
	if code >= 500 {
		s.logger.Error("request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err))
	}
	s.writeJSON(w, code, errorResponse{Error: services.Message(err)})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ctx := services.WithRequestID(r.Context(), requestID)
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r.WithContext(ctx))
		s.logger.Debug("request handled",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", recorder.status),
			logging.String("request_id", requestID),
			logging.Duration("elapsed", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
