// Package api serves a small read-only HTTP API over the audit log and the gallery
// refresh status, for the dashboard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/andresmejia3/sentinel-home/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Events is the read side of the audit log.
type Events interface {
	ListVisits(ctx context.Context, limit int) ([]store.Visit, error)
	ListAlerts(ctx context.Context, limit int) ([]store.Alert, error)
}

// Galleries reports gallery refresh health.
type Galleries interface {
	Status() []gallery.Status
}

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	events     Events
	galleries  Galleries
	logger     *slog.Logger
}

// NewServer builds the server. Either collaborator may be nil; its endpoints then answer 503.
func NewServer(addr string, events Events, galleries Galleries, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	s := &Server{router: r, events: events, galleries: galleries, logger: logger}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/galleries", s.listGalleries)
		r.Get("/events", s.listEvents)
		r.Get("/alerts", s.listAlerts)
	})

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to start server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listGalleries(w http.ResponseWriter, r *http.Request) {
	if s.galleries == nil {
		respondError(w, http.StatusServiceUnavailable, "galleries not loaded")
		return
	}
	respondJSON(w, http.StatusOK, s.galleries.Status())
}

// limitParam parses ?limit=; zero means the store default.
func limitParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	return n, nil
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	visits, err := s.events.ListVisits(r.Context(), limit)
	if err != nil {
		s.logger.Error("list visits failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if visits == nil {
		visits = []store.Visit{}
	}
	respondJSON(w, http.StatusOK, visits)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		respondError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	alerts, err := s.events.ListAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error("list alerts failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}
