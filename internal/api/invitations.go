package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ryadrakem/mms-V2/internal/invitation"
)

func (s *Server) handleInvitationResponse(w http.ResponseWriter, r *http.Request) {
	if s.deps.Invitations == nil {
		writeAPIError(w, http.StatusServiceUnavailable, "unavailable", "Invitations are not configured")
		return
	}
	meetingID, err1 := strconv.ParseInt(chi.URLParam(r, "meetingID"), 10, 64)
	participantID, err2 := strconv.ParseInt(chi.URLParam(r, "participantID"), 10, 64)
	if err1 != nil || err2 != nil || meetingID <= 0 || participantID <= 0 {
		writeAPIError(w, http.StatusBadRequest, "invalid_request", "Invalid invitation link.")
		return
	}

	res, err := s.deps.Invitations.Respond(r.Context(), meetingID, participantID,
		chi.URLParam(r, "token"), chi.URLParam(r, "response"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, invitation.ErrInvalidResponse):
		writeAPIError(w, http.StatusBadRequest, "invalid_response", "Invalid response type.")
	case errors.Is(err, invitation.ErrParticipantNotFound):
		writeAPIError(w, http.StatusNotFound, "not_found", "Participant not found.")
	case errors.Is(err, invitation.ErrInvalidToken):
		writeAPIError(w, http.StatusForbidden, "invalid_token", "Invalid or expired link.")
	case errors.Is(err, invitation.ErrMismatch):
		writeAPIError(w, http.StatusConflict, "mismatch", "Meeting and participant mismatch.")
	default:
		s.log.Error().Err(err).Int64("meeting_id", meetingID).Int64("participant_id", participantID).Msg("invitation response failed")
		writeAPIError(w, http.StatusInternalServerError, "internal", "An error occurred while processing your response.")
	}
}
