// Package api exposes the service surface over HTTP: scene activation,
// manual control, timeshift adjustment and entity status.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TPO-2024-2025/DynamicScenes/internal/coordinator"
)

// Controller is the coordinator surface the API drives.
type Controller interface {
	SetSceneActive(entityIDs []string, scene string)
	SetSceneInactive(entityIDs []string, scene string)
	StopAdjustments(entityIDs []string)
	ContinueAdjustments(entityIDs []string)
	SetTimeshift(entityIDs []string, seconds int)
	ShiftTime(entityIDs []string, seconds int)
	Snapshot() []coordinator.EntityStatus
}

// ReadyFunc reports whether the daemon is connected and serving.
type ReadyFunc func() bool

// Server is the HTTP API server.
type Server struct {
	addr       string
	ctrl       Controller
	ready      ReadyFunc
	httpServer *http.Server
}

// NewServer creates a new API server.
func NewServer(host string, port int, ctrl Controller, ready ReadyFunc) *Server {
	return &Server{
		addr:  fmt.Sprintf("%s:%d", host, port),
		ctrl:  ctrl,
		ready: ready,
	}
}

// Handler returns the request mux. Split out so tests can drive it
// without a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/services/set_scene", s.handleSceneCall(s.ctrl.SetSceneActive))
	mux.HandleFunc("POST /api/services/unset_scene", s.handleSceneCall(s.ctrl.SetSceneInactive))
	mux.HandleFunc("POST /api/services/stop_adjustments", s.handleEntityCall(s.ctrl.StopAdjustments))
	mux.HandleFunc("POST /api/services/continue_adjustments", s.handleEntityCall(s.ctrl.ContinueAdjustments))
	mux.HandleFunc("POST /api/services/set_timeshift", s.handleTimeshiftCall(s.ctrl.SetTimeshift))
	mux.HandleFunc("POST /api/services/shift_time", s.handleTimeshiftCall(s.ctrl.ShiftTime))
	mux.HandleFunc("GET /api/entities", s.handleEntities)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)

	return mux
}

// Run starts the API server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	log.Info().Str("addr", s.addr).Msg("Starting API server")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("API server shutdown error")
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

type serviceRequest struct {
	EntityIDs []string `json:"entity_ids"`
	Scene     string   `json:"scene,omitempty"`
	// Timeshift and Shift are in minutes, matching wall-clock intuition.
	Timeshift *int `json:"timeshift,omitempty"`
	Shift     *int `json:"shift,omitempty"`
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (*serviceRequest, bool) {
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if len(req.EntityIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entity_ids is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleSceneCall(fn func(ids []string, scene string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}
		if req.Scene == "" {
			writeError(w, http.StatusBadRequest, "scene is required")
			return
		}

		fn(req.EntityIDs, req.Scene)
		writeOK(w)
	}
}

func (s *Server) handleEntityCall(fn func(ids []string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}

		fn(req.EntityIDs)
		writeOK(w)
	}
}

func (s *Server) handleTimeshiftCall(fn func(ids []string, seconds int)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			return
		}

		minutes := req.Timeshift
		if minutes == nil {
			minutes = req.Shift
		}
		if minutes == nil {
			writeError(w, http.StatusBadRequest, "timeshift or shift is required")
			return
		}
		if *minutes < -720 || *minutes > 720 {
			writeError(w, http.StatusBadRequest, "timeshift must be between -720 and 720 minutes")
			return
		}

		fn(req.EntityIDs, *minutes*60)
		writeOK(w)
	}
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.ctrl.Snapshot()); err != nil {
		log.Error().Err(err).Msg("Failed to encode entity snapshot")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready != nil && !s.ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
