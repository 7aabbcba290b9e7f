// Package invitation records a participant's answer to a meeting
// invitation from the signed link sent by email.
package invitation

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
)

var (
	ErrInvalidResponse     = errors.New("invalid response type")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidToken        = errors.New("invalid or expired link")
	ErrMismatch            = errors.New("meeting and participant mismatch")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Result describes the answer that was recorded, or the earlier answer
// when the participant had already responded.
type Result struct {
	MeetingID       int64  `json:"meeting_id"`
	MeetingName     string `json:"meeting_name"`
	ParticipantName string `json:"participant_name"`
	Status          Status `json:"status"`
	AlreadyAnswered bool   `json:"already_answered"`
}

type Service struct {
	store recordstore.Store
	log   zerolog.Logger
}

func NewService(store recordstore.Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log.With().Str("module", "invitation").Logger()}
}

// Respond validates the link token and moves the invitation out of
// pending. An invitation is answered once; later answers report the
// first one unchanged.
func (s *Service) Respond(ctx context.Context, meetingID, participantID int64, token, response string) (Result, error) {
	var status Status
	switch response {
	case "accept":
		status = StatusAccepted
	case "decline":
		status = StatusDeclined
	default:
		return Result{}, ErrInvalidResponse
	}

	recs, err := s.store.Read(ctx, model.ModelParticipant, []int64{participantID},
		[]string{"name", "access_token", "meeting_planification_id", "invitation_status"})
	if err != nil {
		return Result{}, fmt.Errorf("read participant: %w", err)
	}
	if len(recs) == 0 {
		return Result{}, ErrParticipantNotFound
	}
	p := recs[0]

	stored := p.String("access_token")
	if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		s.log.Warn().Int64("participant_id", participantID).Msg("invalid invitation token")
		return Result{}, ErrInvalidToken
	}
	planID, planName := p.Ref("meeting_planification_id")
	if planID != meetingID {
		return Result{}, ErrMismatch
	}

	res := Result{MeetingID: meetingID, MeetingName: planName, ParticipantName: p.String("name")}
	if res.MeetingName == "" {
		if plans, err := s.store.Read(ctx, model.ModelPlan, []int64{meetingID}, []string{"name"}); err == nil && len(plans) > 0 {
			res.MeetingName = plans[0].String("name")
		}
	}

	if prev := Status(p.String("invitation_status")); prev != "" && prev != StatusPending {
		res.Status = prev
		res.AlreadyAnswered = true
		return res, nil
	}

	if err := s.store.Write(ctx, model.ModelParticipant, []int64{participantID}, recordstore.Record{"invitation_status": string(status)}); err != nil {
		return Result{}, fmt.Errorf("write invitation status: %w", err)
	}
	res.Status = status
	s.log.Info().Int64("meeting_id", meetingID).Str("participant", res.ParticipantName).Str("status", string(status)).Msg("invitation answered")
	return res, nil
}
