// Package httpapi is the trigger/status HTTP surface, a chi router in
// the shape of the teacher's internal/infrastructure/http package
// (same middleware stack, same health-check contract) mounting the
// routes this service needs instead of the teacher's todo-list API:
// "/", "/health", "/metrics", "/trigger", "/rundb/status" and
// "/timeline/sync/person".
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rezkam/reconcile/internal/domain"
	"github.com/rezkam/reconcile/internal/dst"
	"github.com/rezkam/reconcile/internal/notify"
	"github.com/rezkam/reconcile/internal/reconcile"
	"github.com/rezkam/reconcile/internal/runctl"
	"github.com/rezkam/reconcile/internal/src"
)

// Default configuration values, mirrored from the teacher's HTTP server
// defaults.
const (
	DefaultHost              = ""
	DefaultPort              = "8080"
	DefaultReadTimeout       = 15 * time.Second
	DefaultWriteTimeout      = 15 * time.Second
	DefaultReadHeaderTimeout = 5 * time.Second
)

// ServerConfig holds the net/http.Server knobs.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	ReadHeaderTimeout time.Duration
}

func (cfg *ServerConfig) applyDefaults() {
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
}

// Server holds every dependency the handlers need. Institutions,
// Gate and Exec back /trigger; History backs /rundb/status; the
// src/dst/Zone/Classification group backs /timeline/sync/person.
type Server struct {
	Log          *slog.Logger
	Institutions []string

	Gate     runctl.Gate
	HolderID func() string
	Exec     runctl.Executor
	Notify   notify.Notifier
	History  runctl.RunHistory

	Zone           *time.Location
	Classification src.StatusClassification
	SrcClient      src.Client
	DstReader      dst.Reader
	Applier        dst.Applier
}

// NewAPIServer builds the net/http.Server wrapping this package's
// router, following the teacher's NewAPIServer/setupHTTPServer split.
func NewAPIServer(s *Server, cfg ServerConfig) *http.Server {
	cfg.applyDefaults()
	return &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           s.Router(),
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// Router builds the chi router on its own, for tests that want to drive
// handlers with httptest without a listening socket.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/trigger", s.handleTrigger)
	r.Get("/rundb/status", s.handleRunDBStatus)
	r.Post("/timeline/sync/person", s.handleSyncPerson)
	return r
}

func writeJSON(w http.ResponseWriter, r *http.Request, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.ErrorContext(r.Context(), "failed to write response body", "error", err)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.Log, http.StatusOK, map[string]any{
		"service":      "reconcile",
		"institutions": s.Institutions,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.Log, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics reports the run gate's current record (status, holder,
// lease expiry) as JSON for a quick operator check. One gate is shared
// by every configured institution, so the response is not broken down
// per institution. It is not a Prometheus exposition and carries no run
// counters or timings.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Gate.Status(r.Context())
	if err != nil {
		writeJSON(w, r, s.Log, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, r, s.Log, http.StatusOK, map[string]any{
		"gate_status": rec.Status,
		"holder_id":   rec.HolderID,
		"expires_at":  rec.ExpiresAt,
	})
}

// handleTrigger starts a reconciliation run in the background and
// returns immediately; poll /rundb/status or /metrics for progress. The
// gate's own atomic TryAcquire (inside Controller.Run) is the real
// guard against overlapping runs; the Status peek here only lets the
// endpoint reject an already-running request synchronously instead of
// making the caller wait for the background goroutine to fail.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	holderID := "http-trigger"
	if s.HolderID != nil {
		holderID = s.HolderID()
	}

	if rec, err := s.Gate.Status(r.Context()); err == nil {
		now := time.Now().UTC()
		if rec.Status == domain.RunStatusRunning && rec.ExpiresAt.After(now) {
			writeJSON(w, r, s.Log, http.StatusConflict, map[string]string{"error": domain.ErrGateLocked.Error()})
			return
		}
	}

	ctrl := runctl.Controller{Gate: s.Gate, HolderID: holderID, Log: s.Log, Notify: s.Notify}
	go func() {
		bg := context.Background()
		if err := ctrl.Run(bg, s.Institutions, s.Exec); err != nil && !errors.Is(err, domain.ErrGateLocked) {
			s.Log.ErrorContext(bg, "triggered run failed", "error", err)
		}
	}()

	writeJSON(w, r, s.Log, http.StatusAccepted, map[string]string{"status": "triggered", "holder_id": holderID})
}

// handleRunDBStatus returns the last recorded run outcome per
// institution.
func (s *Server) handleRunDBStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := s.History.LastRuns(r.Context())
	if err != nil {
		writeJSON(w, r, s.Log, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, r, s.Log, http.StatusOK, runs)
}

// syncPersonRequest is the body POST /timeline/sync/person expects
// (spec §6): {institution_identifier, cpr}.
type syncPersonRequest struct {
	InstitutionIdentifier string `json:"institution_identifier"`
	CPR                   string `json:"cpr"`
}

// handleSyncPerson resolves one person's engagement decisions against
// the destination store and applies each one through s.Applier, so the
// endpoint actually changes DST's validities rather than only reporting
// what it would do. domain.ErrPersonNotFound surfaces as 404.
func (s *Server) handleSyncPerson(w http.ResponseWriter, r *http.Request) {
	var req syncPersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, s.Log, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.InstitutionIdentifier == "" || req.CPR == "" {
		writeJSON(w, r, s.Log, http.StatusBadRequest, map[string]string{"error": "institution_identifier and cpr are required"})
		return
	}

	now := time.Now().In(s.Zone)
	decisions, err := reconcile.SyncPerson(
		r.Context(), s.Zone, s.Classification, s.SrcClient, s.DstReader, s.Applier,
		req.InstitutionIdentifier, req.CPR, now, time.Time{}, now,
	)
	if err != nil {
		if errors.Is(err, domain.ErrPersonNotFound) {
			writeJSON(w, r, s.Log, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, r, s.Log, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, r, s.Log, http.StatusOK, decisions)
}
