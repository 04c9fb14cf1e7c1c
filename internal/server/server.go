// Package server exposes the monitor's HTTP API: current status,
// incident history, statistics, and on-demand traces.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"netwatch/internal/daemon"
	"netwatch/internal/metrics"
	"netwatch/internal/models"
)

const defaultHistoryDays = 7

// Server wraps HTTP serving of the monitor API.
type Server struct {
	httpServer *http.Server
	daemon     *daemon.Daemon
	logger     zerolog.Logger
}

// New creates a configured HTTP server backed by the daemon.
func New(addr string, d *daemon.Daemon, logger zerolog.Logger) *Server {
	s := &Server{
		daemon: d,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/incidents", s.handleIncidents)
	r.Get("/api/incidents/{id}/traces", s.handleIncidentTraces)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/timeline", s.handleTimeline)
	r.Post("/api/trace", s.handleTrace)
	r.Get("/ws/status", s.handleStatusWS)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Run blocks and serves HTTP traffic.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Snapshot())
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	days := parsePositiveInt(r, "days", defaultHistoryDays)
	until := time.Now().UTC()
	since := until.AddDate(0, 0, -days)

	incidents, err := s.daemon.Store().ListIncidents(r.Context(), since, until)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list incidents")
		http.Error(w, "failed to list incidents", http.StatusInternalServerError)
		return
	}
	if incidents == nil {
		incidents = []*models.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (s *Server) handleIncidentTraces(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid incident id", http.StatusBadRequest)
		return
	}

	traces, err := s.daemon.Store().TracesForIncident(r.Context(), id)
	if err != nil {
		s.logger.Error().Err(err).Int64("incident", id).Msg("failed to load traces")
		http.Error(w, "failed to load traces", http.StatusInternalServerError)
		return
	}
	if traces == nil {
		traces = []models.TraceSnapshot{}
	}
	writeJSON(w, http.StatusOK, traces)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	hours := parsePositiveInt(r, "hours", 24)

	stats, err := s.daemon.Stats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to compute stats")
		http.Error(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	hours := parsePositiveInt(r, "hours", 24)
	points := parsePositiveInt(r, "points", metrics.DefaultTimelinePoints)

	end := time.Now().UTC()
	start := end.Add(-time.Duration(hours) * time.Hour)

	probes, err := s.daemon.Store().ProbeHistory(r.Context(), start)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load probe history")
		http.Error(w, "failed to load probe history", http.StatusInternalServerError)
		return
	}
	timelines := metrics.BuildTargetTimelines(probes, start, end, points)
	if timelines == nil {
		timelines = []metrics.TargetTimeline{}
	}
	writeJSON(w, http.StatusOK, timelines)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target string `json:"target"`
	}
	if r.Body != nil {
		// an empty body means "trace the primary target"
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	snapshot := s.daemon.ManualTrace(r.Context(), req.Target)
	writeJSON(w, http.StatusOK, snapshot)
}

func parsePositiveInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
