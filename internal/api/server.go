// Package api serves train snapshots and upcoming departures over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/julienschmidt/httprouter"

	"train-positions/internal/logging"
	mmetrics "train-positions/internal/metrics"
	"train-positions/internal/sim"
)

type Server struct {
	mgr            atomic.Pointer[sim.Manager]
	upcomingWindow time.Duration
	logger         *slog.Logger
	metrics        *mmetrics.Collector
	router         *httprouter.Router
}

func NewServer(mgr *sim.Manager, upcomingWindow time.Duration, logger *slog.Logger, metrics *mmetrics.Collector) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if upcomingWindow <= 0 {
		upcomingWindow = sim.DefaultUpcomingWindow
	}
	s := &Server{upcomingWindow: upcomingWindow, logger: logger, metrics: metrics}
	s.mgr.Store(mgr)
	s.router = s.routes()
	return s
}

// SetManager swaps the manager served, e.g. after a schedule reload.
func (s *Server) SetManager(mgr *sim.Manager) { s.mgr.Store(mgr) }

func (s *Server) routes() *httprouter.Router {
	r := httprouter.New()
	r.HandlerFunc(http.MethodGet, "/healthz", s.instrument("/healthz", s.healthHandler))
	r.HandlerFunc(http.MethodGet, "/api/trains", s.instrument("/api/trains", s.trainsHandler))
	r.HandlerFunc(http.MethodGet, "/api/stops/:id/upcoming", s.instrument("/api/stops/:id/upcoming", s.upcomingHandler))
	r.HandlerFunc(http.MethodGet, "/gtfs-rt/vehicle-positions", s.instrument("/gtfs-rt/vehicle-positions", s.vehiclePositionsHandler))
	return r
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http listening", slog.String("addr", addr))
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.metrics.HTTPRequestInc(route, rec.status)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	}
}

type trainsResponse struct {
	Timestamp time.Time           `json:"timestamp"`
	Count     int                 `json:"count"`
	Trains    []sim.TrainSnapshot `json:"trains"`
}

func (s *Server) trainsHandler(w http.ResponseWriter, r *http.Request) {
	snaps, at := s.mgr.Load().Latest()
	s.writeJSON(w, http.StatusOK, trainsResponse{Timestamp: at, Count: len(snaps), Trains: snaps})
}

func (s *Server) upcomingHandler(w http.ResponseWriter, r *http.Request) {
	mgr := s.mgr.Load()
	id := httprouter.ParamsFromContext(r.Context()).ByName("id")
	if _, ok := mgr.Engine().Schedule().Stops[id]; !ok {
		s.writeError(w, http.StatusNotFound, "unknown stop")
		return
	}
	window := s.upcomingWindow
	if v := r.URL.Query().Get("window"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 || minutes > 24*60 {
			s.writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = time.Duration(minutes) * time.Minute
	}
	s.writeJSON(w, http.StatusOK, mgr.Engine().Upcoming(id, mgr.Now(), window))
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	mgr := s.mgr.Load()
	_, at := mgr.Latest()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"lastTick": at,
		"trips":    len(mgr.Engine().Schedule().Trips),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.LogError(s.logger, "encode response", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
