package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/crescendo-labs/crescendo/internal/engine"
	"github.com/crescendo-labs/crescendo/internal/experiment"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var verr *experiment.ValidationError
	var serr *engine.StateError
	switch {
	case errors.Is(err, engine.ErrExperimentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrUserNotInExperiment):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidStopReason):
		status = http.StatusBadRequest
	case errors.As(err, &verr):
		status = http.StatusBadRequest
	case errors.As(err, &serr):
		status = http.StatusConflict
	}

	s.respondJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var def experiment.Experiment
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	exp, err := s.engine.CreateExperiment(r.Context(), &def)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"experiments": s.engine.ListExperiments(),
	})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.engine.Experiment(chi.URLParam(r, "experimentID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, exp)
}

func (s *Server) handleStartExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.engine.StartExperiment(r.Context(), chi.URLParam(r, "experimentID"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, exp)
}

func (s *Server) handleStopExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Reason == "" {
		req.Reason = experiment.StopReasonManual
	}

	exp, err := s.engine.StopExperiment(r.Context(), chi.URLParam(r, "experimentID"), req.Reason)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, exp)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	detailed := r.URL.Query().Get("detailed") == "true"

	res, err := s.engine.ExperimentResults(chi.URLParam(r, "experimentID"), detailed)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "experimentID")
	report, ok := s.engine.Report(id)
	if !ok {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "no report for experiment"})
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID     string                    `json:"user_id"`
		Attributes experiment.UserAttributes `json:"attributes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.UserID == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	a, err := s.engine.AssignUserToVariation(r.Context(), req.UserID, chi.URLParam(r, "experimentID"), req.Attributes)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if a == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"assigned": false})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"assigned": true, "assignment": a})
}

func (s *Server) handleTrackEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string                  `json:"user_id"`
		Type    string                  `json:"type"`
		Payload experiment.EventPayload `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.UserID == "" || req.Type == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and type are required"})
		return
	}

	ev, err := s.engine.TrackEvent(r.Context(), req.UserID, chi.URLParam(r, "experimentID"), req.Type, req.Payload)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, ev)
}

func (s *Server) handleFrameworkMetrics(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.engine.Metrics())
}
