package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ryadrakem/mms-V2/internal/auth"
	"github.com/ryadrakem/mms-V2/internal/jaas"
	"github.com/ryadrakem/mms-V2/internal/jsonrpc"
	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
	"github.com/ryadrakem/mms-V2/internal/session"
)

type ctxKey string

const coordinatorKey ctxKey = "coordinator"

type tabRequest struct {
	Tab    model.Tab `json:"tab"`
	Toggle bool      `json:"toggle"`
}

type pipRequest struct {
	Show bool `json:"show"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type minutesRequest struct {
	PV string `json:"pv"`
}

type knockRequest struct {
	ParticipantID string `json:"participant_id"`
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (s *Server) handleJitsiToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeAPIError(w, http.StatusUnauthorized, "unauthorized", "missing user identity")
		return
	}

	var params jaas.Request
	call, err := jsonrpc.DecodeParams(r, &params)
	if err != nil {
		jsonrpc.WriteError(w, call.ID, -32602, "invalid params")
		return
	}
	params.UserID = userID

	if s.deps.Tokens == nil {
		jsonrpc.WriteResult(w, call.ID, jaas.Grant{Error: "Jitsi is not configured"})
		return
	}
	grant, err := s.deps.Tokens.Exchange(r.Context(), params)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Int64("meeting_id", params.MeetingID).Msg("token exchange failed")
		msg := "Failed to generate authentication token"
		switch {
		case errors.Is(err, jaas.ErrMeetingNotFound):
			msg = "Meeting not found"
		case errors.Is(err, jaas.ErrUserNotFound):
			msg = "User not found"
		}
		jsonrpc.WriteResult(w, call.ID, jaas.Grant{Error: msg})
		return
	}
	jsonrpc.WriteResult(w, call.ID, grant)
}

func sessionIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	sessionID, ok := sessionIDParam(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "No session ID provided")
		return
	}

	c, err := s.deps.Sessions.Open(r.Context(), sessionID, userID)
	var perr *session.ProviderError
	switch {
	case err == nil:
	case c != nil && errors.As(err, &perr):
		// Loaded but not connected: the page shows the error and offers a retry.
	default:
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// handleSocket attaches the session page. Pages connect before opening, so
// ownership is only enforced once the session is open.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	sessionID, ok := sessionIDParam(r)
	if !ok {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "No session ID provided")
		return
	}
	if c, open := s.deps.Sessions.Get(sessionID); open && c.Owner() != userID {
		writeAPIError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
		return
	}
	if s.deps.Sockets == nil {
		writeAPIError(w, http.StatusNotImplemented, "not_implemented", "websocket transport disabled")
		return
	}
	if err := s.deps.Sockets.Serve(s.deps.BaseContext, w, r, sessionID); err != nil {
		// The upgrader already answered the client.
		s.log.Warn().Err(err).Int64("session_id", sessionID).Msg("websocket upgrade failed")
	}
}

func (s *Server) openSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := auth.UserIDFromContext(r.Context())
		sessionID, ok := sessionIDParam(r)
		if !ok {
			writeAPIError(w, http.StatusBadRequest, "invalid_request", "No session ID provided")
			return
		}
		c, open := s.deps.Sessions.Get(sessionID)
		if !open {
			writeAPIError(w, http.StatusNotFound, "not_found", "session is not open")
			return
		}
		if c.Owner() != userID {
			writeAPIError(w, http.StatusForbidden, "forbidden", "session belongs to another user")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), coordinatorKey, c)))
	})
}

func coordinator(r *http.Request) *session.Coordinator {
	return r.Context().Value(coordinatorKey).(*session.Coordinator)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "invalid JSON payload")
		return false
	}
	return true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, coordinator(r).Snapshot())
}

func (s *Server) handleTab(w http.ResponseWriter, r *http.Request) {
	var req tabRequest
	if !decode(w, r, &req) {
		return
	}
	c := coordinator(r)
	var (
		view session.View
		err  error
	)
	if req.Toggle {
		view, err = c.ToggleTab(req.Tab)
	} else {
		view, err = c.SetActiveTab(req.Tab)
	}
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePip(w http.ResponseWriter, r *http.Request) {
	var req pipRequest
	if !decode(w, r, &req) {
		return
	}
	c := coordinator(r)
	if req.Show {
		writeJSON(w, http.StatusOK, c.ShowPip())
		return
	}
	writeJSON(w, http.StatusOK, c.ClosePip())
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	on, err := coordinator(r).ToggleCamera(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"display_camera": on})
}

func (s *Server) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req notesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := coordinator(r).SaveNotes(r.Context(), req.Notes); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved"})
}

func (s *Server) handleMinutes(w http.ResponseWriter, r *http.Request) {
	var req minutesRequest
	if !decode(w, r, &req) {
		return
	}
	if err := coordinator(r).SaveMinutes(r.Context(), req.PV); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "saved"})
}

func (s *Server) handleMinutesDraft(w http.ResponseWriter, r *http.Request) {
	text, err := coordinator(r).DraftMinutes(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pv": text})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	c := coordinator(r)
	if err := c.EndMeeting(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	c := coordinator(r)
	if err := c.LeaveMeeting(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	c := coordinator(r)
	if err := c.RetryConnection(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (s *Server) handleAdmit(w http.ResponseWriter, r *http.Request) {
	s.answerKnocking(w, r, true)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	s.answerKnocking(w, r, false)
}

func (s *Server) answerKnocking(w http.ResponseWriter, r *http.Request, admit bool) {
	var req knockRequest
	if !decode(w, r, &req) {
		return
	}
	if req.ParticipantID == "" {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "participant_id is required")
		return
	}
	c := coordinator(r)
	var err error
	if admit {
		err = c.Admit(r.Context(), req.ParticipantID)
	} else {
		err = c.Reject(r.Context(), req.ParticipantID)
	}
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"waiting_participants": c.Snapshot().Waiting})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	var req muteRequest
	if !decode(w, r, &req) {
		return
	}
	if err := coordinator(r).SetMuted(r.Context(), req.Muted); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"muted": req.Muted})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	c := coordinator(r)
	actions, err := c.ListActions(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	assignees, err := c.Assignees(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if actions == nil {
		actions = []model.ActionItem{}
	}
	if assignees == nil {
		assignees = []model.Assignee{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "assignees": assignees})
}

func (s *Server) handleAddAction(w http.ResponseWriter, r *http.Request) {
	item, err := coordinator(r).AddAction(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func actionIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "actionID"), 10, 64)
	if err != nil || id <= 0 {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "invalid action id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleUpdateAction(w http.ResponseWriter, r *http.Request) {
	id, ok := actionIDParam(w, r)
	if !ok {
		return
	}
	var item model.ActionItem
	if !decode(w, r, &item) {
		return
	}
	item.ID = id
	if err := coordinator(r).UpdateAction(r.Context(), item); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	id, ok := actionIDParam(w, r)
	if !ok {
		return
	}
	if err := coordinator(r).DeleteAction(r.Context(), id); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSessionError maps coordinator errors to responses. The user has
// already been notified; the body only carries the kind of failure.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	var (
		stage  *session.StageError
		prov   *session.ProviderError
		remote *recordstore.RemoteError
	)
	switch {
	case errors.Is(err, session.ErrMissingIdentifier), errors.Is(err, session.ErrInvalidTab), errors.Is(err, session.ErrInvalidAction):
		writeAPIError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, session.ErrUnauthorized):
		writeAPIError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, session.ErrBusy):
		writeAPIError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrNotConnected),
		errors.Is(err, session.ErrRetriesExhausted), errors.Is(err, session.ErrNoMeeting):
		writeAPIError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.As(err, &stage):
		writeAPIError(w, http.StatusBadGateway, "end_meeting_failed", "end meeting failed at the "+stage.Stage+" stage")
	case errors.As(err, &prov):
		writeAPIError(w, http.StatusBadGateway, "video_error", "video "+prov.Op+" failed")
	case errors.As(err, &remote):
		writeAPIError(w, http.StatusBadGateway, "record_store_error", remote.Op+" "+remote.Model+" failed")
	default:
		s.log.Error().Err(err).Msg("unexpected session error")
		writeAPIError(w, http.StatusInternalServerError, "internal_error", "request failed")
	}
}
