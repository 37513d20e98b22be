package handler

import (
	"net/http"

	"github.com/freeeve/enclaves/internal/auth"
	"github.com/freeeve/enclaves/internal/model"
	"github.com/freeeve/enclaves/internal/service"
)

// SessionHandler handles session lifecycle, turn and history endpoints.
type SessionHandler struct {
	sessionSvc *service.SessionService
	turnSvc    *service.TurnService
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessionSvc *service.SessionService, turnSvc *service.TurnService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc, turnSvc: turnSvc}
}

type sessionView struct {
	Session  *model.Session     `json:"session"`
	State    *service.LiveState `json:"state,omitempty"`
	InFlight bool               `json:"in_flight"`
}

// CreateSession handles POST /api/v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var setup service.Setup
	if err := decodeJSON(r, &setup); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessionSvc.CreateSession(r.Context(), userID, setup)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	st, err := h.sessionSvc.GetState(r.Context(), session.ID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionView{Session: session, State: st})
}

// ListSessions handles GET /api/v1/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	sessions, err := h.sessionSvc.ListSessions(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sessions == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// GetSession handles GET /api/v1/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	session, err := h.sessionSvc.GetSession(r.Context(), sessionID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	view := sessionView{Session: session, InFlight: h.turnSvc.InFlight(sessionID)}
	// A session abandoned before its first turn has no state to show.
	if st, err := h.sessionSvc.GetState(r.Context(), sessionID, userID); err == nil {
		view.State = st
	}
	writeJSON(w, http.StatusOK, view)
}

// ResetSession handles POST /api/v1/sessions/{id}/reset
func (h *SessionHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	st, err := h.sessionSvc.ResetSession(r.Context(), sessionID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ExitSession handles POST /api/v1/sessions/{id}/exit
func (h *SessionHandler) ExitSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.sessionSvc.ExitSession(r.Context(), sessionID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": model.StatusAbandoned})
}

// ResolveTurn handles POST /api/v1/sessions/{id}/resolve. The turn is
// resolved asynchronously; the result arrives over the WebSocket.
func (h *SessionHandler) ResolveTurn(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if _, err := h.sessionSvc.GetSession(r.Context(), sessionID, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	dispatched, err := h.turnSvc.ResolveTurn(r.Context(), sessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"dispatched": dispatched})
}

// History handles GET /api/v1/sessions/{id}/turns
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	turns, err := h.sessionSvc.History(r.Context(), sessionID, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if turns == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, turns)
}
