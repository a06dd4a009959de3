// Package server exposes a small status API over the session store.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/reflexcoder/autoagent/internal/log"
	"github.com/reflexcoder/autoagent/internal/storage"
)

// Server serves health, session status, earnings and metrics endpoints.
type Server struct {
	store  *storage.Store
	logger zerolog.Logger
	http   *http.Server
}

func New(addr string, store *storage.Store) *Server {
	s := &Server{
		store:  store,
		logger: log.WithComponent("server"),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/episodes", s.handleEpisodes)
	r.Get("/api/earnings", s.handleEarnings)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// ListenAndServe blocks until the context is canceled or serving fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("status server listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context(), 20)
	if err != nil {
		s.logger.Error().Err(err).Msg("list sessions")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list sessions failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	episodes, err := s.store.ListEpisodes(r.Context(), sessionID, 100)
	if err != nil {
		s.logger.Error().Err(err).Msg("list episodes")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list episodes failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"episodes": episodes})
}

func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	summaries, err := s.store.SummarizeEarnings(r.Context(), sessionID)
	if err != nil {
		s.logger.Error().Err(err).Msg("summarize earnings")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "summarize earnings failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"earnings": summaries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
