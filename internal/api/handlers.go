// Package api provides the HTTP surface over the IntakeBridge boundary operations.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BTreeMap/IntakeBridge/internal/models"
	"github.com/go-chi/chi/v5"
)

// CreateSessionRequest is the body of POST /api/intake/start.
type CreateSessionRequest struct {
	SessionID string `json:"session_id"`
}

// MessageRequest is the body of the answer-submission endpoints. The
// question key is optional; free-text turns default to "free_text".
type MessageRequest struct {
	QuestionKey string `json:"question_key,omitempty"`
	Message     string `json:"message"`
}

// DefaultQuestionKey is used when an intake answer arrives without a key.
const DefaultQuestionKey = "free_text"

// Server exposes the boundary operations over HTTP.
type Server struct {
	svc *Service
}

// NewServer creates an HTTP server wrapper around the service.
func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

// Routes builds the chi router for all endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/intake/start", s.createIntakeHandler)
		r.Get("/intake/{sessionID}", s.getIntakeHandler)
		r.Post("/intake/{sessionID}/message", s.intakeMessageHandler)
		r.Post("/intake/{sessionID}/complete", s.completeIntakeHandler)
		r.Post("/intake/{sessionID}/transfer", s.transferHandler)
		r.Get("/pregnancy/{sessionID}", s.getPregnancyHandler)
		r.Post("/pregnancy/{sessionID}/message", s.pregnancyMessageHandler)
		r.Get("/sessions", s.listSessionsHandler)
	})
	return r
}

// statusFromError maps the error taxonomy to HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrSessionExists), errors.Is(err, models.ErrSessionNotActive):
		return http.StatusConflict
	case errors.Is(err, models.ErrEmptySessionID), errors.Is(err, models.ErrInvalidSessionID),
		errors.Is(err, models.ErrEmptyQuestionKey), errors.Is(err, models.ErrReservedKey),
		errors.Is(err, models.ErrEmptyAnswer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) createIntakeHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("createIntakeHandler invoked", "method", r.Method, "path", r.URL.Path)

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("createIntakeHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.svc.CreateIntake(r.Context(), req.SessionID)
	if err != nil {
		slog.Warn("createIntakeHandler failed", "error", err, "sessionID", req.SessionID)
		writeJSONResponse(w, statusFromError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(result))
}

func (s *Server) intakeMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slog.Debug("intakeMessageHandler invoked", "sessionID", sessionID)

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("intakeMessageHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	key := req.QuestionKey
	if key == "" {
		key = DefaultQuestionKey
	}

	result, err := s.svc.SubmitIntakeAnswer(r.Context(), sessionID, key, req.Message)
	if err != nil {
		slog.Warn("intakeMessageHandler failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, statusFromError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) completeIntakeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slog.Debug("completeIntakeHandler invoked", "sessionID", sessionID)

	if err := s.svc.CompleteIntake(r.Context(), sessionID); err != nil {
		slog.Warn("completeIntakeHandler failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, statusFromError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("session completed", nil))
}

func (s *Server) transferHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slog.Debug("transferHandler invoked", "sessionID", sessionID)

	result, err := s.svc.TransferToPregnancy(r.Context(), sessionID)
	if err != nil {
		slog.Warn("transferHandler failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, statusFromError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) pregnancyMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	slog.Debug("pregnancyMessageHandler invoked", "sessionID", sessionID)

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("pregnancyMessageHandler invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.svc.SubmitPregnancyAnswer(r.Context(), sessionID, req.Message)
	if err != nil {
		slog.Warn("pregnancyMessageHandler failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, statusFromError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) getIntakeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	rec, err := s.svc.GetIntake(sessionID)
	if err != nil {
		writeJSONResponse(w, statusFromError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}

func (s *Server) getPregnancyHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	rec, err := s.svc.GetPregnancy(sessionID)
	if err != nil {
		writeJSONResponse(w, statusFromError(err), models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(rec))
}

func (s *Server) listSessionsHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.ListSessions()
	if err != nil {
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(err.Error()))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(ids))
}
