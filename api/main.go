package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/keyword-radar/internal/backend"
	"github.com/DeafMist/keyword-radar/internal/config"
	"github.com/DeafMist/keyword-radar/internal/logger"
	"github.com/DeafMist/keyword-radar/internal/metrics"
	"github.com/DeafMist/keyword-radar/internal/models"
	"github.com/DeafMist/keyword-radar/internal/processing"
	"github.com/DeafMist/keyword-radar/internal/store"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	st, err := backend.Open(ctx, cfg.Common, log)
	if err != nil {
		log.Error("open snapshot store", slog.Any("err", err))
		os.Exit(1)
	}
	defer st.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewSnapshotCollector(st, log),
	)

	srv := &server{log: log, store: st}
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr), slog.String("backend", cfg.StoreBackend))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type snapshotReader interface {
	Roots(ctx context.Context) ([]string, error)
	ListDates(ctx context.Context, root string) ([]string, error)
	Get(ctx context.Context, root, date string) (models.Snapshot, error)
	Latest(ctx context.Context, root string) (models.Snapshot, error)
	GetDiff(ctx context.Context, root, date string) (models.Diff, error)
}

// healthChecker is implemented by remote backends that can report cluster health.
type healthChecker interface {
	Health(ctx context.Context) error
}

type server struct {
	log   *slog.Logger
	store snapshotReader
}

type errorResponse struct {
	Error string `json:"error"`
}

type datesResponse struct {
	Root  string   `json:"root"`
	Dates []string `json:"dates"`
}

func (s *server) routes(reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Route("/keywords", func(r chi.Router) {
		r.Get("/", s.handleRoots)
		r.Get("/{root}/snapshots", s.handleDates)
		r.Get("/{root}/snapshots/latest", s.handleLatest)
		r.Get("/{root}/snapshots/{date}", s.handleSnapshot)
		r.Get("/{root}/diffs/{date}", s.handleDiff)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var err error
	if h, ok := s.store.(healthChecker); ok {
		err = h.Health(ctx)
	} else {
		_, err = s.store.Roots(ctx)
	}
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleRoots(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	roots, err := s.store.Roots(ctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keywords": roots})
}

func (s *server) handleDates(w http.ResponseWriter, r *http.Request) {
	root, ok := rootParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	dates, err := s.store.ListDates(ctx, root)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, datesResponse{Root: root, Dates: dates})
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	root, ok := rootParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap, err := s.store.Latest(ctx, root)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	root, ok := rootParam(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	snap, err := s.store.Get(ctx, root, date)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *server) handleDiff(w http.ResponseWriter, r *http.Request) {
	root, ok := rootParam(w, r)
	if !ok {
		return
	}
	date, ok := dateParam(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, err := s.store.GetDiff(ctx, root, date)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
		return
	}
	s.log.Error("store read failed", slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

func rootParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw, err := url.PathUnescape(chi.URLParam(r, "root"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed root"})
		return "", false
	}
	root, err := processing.ValidateRoot(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return "", false
	}
	return root, true
}

func dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := chi.URLParam(r, "date")
	if _, err := models.ParseDate(date); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
		return "", false
	}
	return date, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
