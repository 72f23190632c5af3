// Package webhook serves the daemon's HTTP control surface: triggering
// sessions from other tools and reading the current session status.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/user/promptline/internal/configstore"
	"github.com/user/promptline/internal/session"
	"github.com/user/promptline/internal/state"
	"github.com/user/promptline/internal/types"
)

// Control is the part of the session controller the server drives.
type Control interface {
	StartWith(ctx context.Context, adjust func(types.Settings) types.Settings) error
	Stop(ctx context.Context) error
	Status() session.Status
}

// Server is a lightweight HTTP handler for webhook endpoints.
type Server struct {
	control   Control
	schedules *state.ScheduleStore
	// refresh reloads the records before a triggered start. Optional.
	refresh func(ctx context.Context) error
	mux     *http.ServeMux
}

func NewServer(control Control, schedules *state.ScheduleStore, refresh func(ctx context.Context) error) *Server {
	s := &Server{
		control:   control,
		schedules: schedules,
		refresh:   refresh,
		mux:       http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /webhook", s.handleStart)
	s.mux.HandleFunc("POST /webhook/{name}", s.handleNamedSchedule)
	s.mux.HandleFunc("POST /api/session/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/session", s.handleStatus)
	s.mux.HandleFunc("GET /api/schedules", s.handleSchedules)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startRequest is the optional JSON body for POST /webhook. Zero fields keep
// the saved settings.
type startRequest struct {
	SessionDuration   int `json:"session_duration"`
	MinPromptInterval int `json:"min_prompt_interval"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.SessionDuration < 0 || req.MinPromptInterval < 0 {
		writeError(w, http.StatusBadRequest, "durations must not be negative")
		return
	}

	override := &state.Schedule{
		Name:              "webhook",
		SessionDuration:   req.SessionDuration,
		MinPromptInterval: req.MinPromptInterval,
	}
	s.start(w, r, override)
}

func (s *Server) handleNamedSchedule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	sched, err := s.schedules.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if !sched.Enabled {
		writeError(w, http.StatusForbidden, "schedule is disabled")
		return
	}
	s.start(w, r, sched)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, sched *state.Schedule) {
	ctx := r.Context()
	if s.refresh != nil {
		if err := s.refresh(ctx); err != nil {
			slog.Warn("refresh records before webhook start failed", "error", err)
		}
	}

	if err := s.control.StartWith(ctx, sched.Apply); err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, session.ErrSessionActive):
			status = http.StatusConflict
		case errors.Is(err, configstore.ErrCharacterRequired), errors.Is(err, configstore.ErrThemeRequired):
			status = http.StatusUnprocessableEntity
		}
		slog.Error("webhook start failed", "trigger", sched.Name, "error", err)
		writeError(w, status, session.UserMessage(err))
		return
	}

	slog.Info("session started by webhook", "trigger", sched.Name)
	writeJSON(w, http.StatusOK, statusResponse(s.control.Status()))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.control.Status().State == session.Idle {
		writeError(w, http.StatusConflict, "no session is running")
		return
	}
	if err := s.control.Stop(r.Context()); err != nil {
		slog.Error("webhook stop failed", "error", err)
		writeError(w, http.StatusBadGateway, "error stopping session")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(s.control.Status()))
}

type sessionStatus struct {
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	LastSeen  int    `json:"last_seen"`
	Rendered  int    `json:"rendered"`
}

func statusResponse(st session.Status) sessionStatus {
	return sessionStatus{
		State:     st.State.String(),
		SessionID: string(st.SessionID),
		LastSeen:  st.LastSeen,
		Rendered:  st.Rendered,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(s.control.Status()))
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.schedules.List()
	if err != nil {
		slog.Error("list schedules failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if schedules == nil {
		schedules = []*state.Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
