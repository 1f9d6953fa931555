// internal/httpapi/server.go
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/user/haven/internal/session"
	"github.com/user/haven/internal/types"
)

// Server exposes the session core over a small JSON API.
type Server struct {
	machine *session.Machine
	mux     *http.ServeMux
}

// NewServer creates the HTTP surface over the given state machine.
func NewServer(machine *session.Machine) *Server {
	s := &Server{
		machine: machine,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/sessions", s.handleStart)
	s.mux.HandleFunc("POST /api/sessions/{id}/turns", s.handleTurn)
	s.mux.HandleFunc("POST /api/sessions/{id}/end", s.handleEnd)
	s.mux.HandleFunc("GET /api/sessions/{id}/assessments", s.handleAssessments)
	s.mux.HandleFunc("GET /api/users/{id}/export", s.handleExport)
	s.mux.HandleFunc("DELETE /api/users/{id}", s.handleDelete)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startRequest is the JSON body for POST /api/sessions.
type startRequest struct {
	UserID   string                `json:"user_id"`
	Modality string                `json:"modality"`
	Culture  types.CulturalContext `json:"culture"`
	Goals    []string              `json:"goals"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	modality := types.Modality(req.Modality)
	if modality == "" {
		modality = types.ModalityText
	}

	id, err := s.machine.Start(r.Context(), types.UserID(req.UserID), modality, session.StartOptions{
		Culture: req.Culture,
		Goals:   req.Goals,
	})
	if err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": string(id)})
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var input types.TurnInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	result, err := s.machine.ProcessTurn(r.Context(), types.SessionID(r.PathValue("id")), input)
	if err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	report, err := s.machine.End(r.Context(), types.SessionID(r.PathValue("id")))
	if err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAssessments(w http.ResponseWriter, r *http.Request) {
	history, err := s.machine.RiskHistory(types.SessionID(r.PathValue("id")))
	if err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := s.machine.ExportUserData(r.Context(), types.UserID(r.PathValue("id")))
	if err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, export)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.machine.DeleteUserData(r.Context(), types.UserID(r.PathValue("id"))); err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) writeMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrTurnInProgress),
		errors.Is(err, types.ErrSessionNotActive),
		errors.Is(err, types.ErrUserSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
