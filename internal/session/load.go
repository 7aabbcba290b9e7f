package session

import (
	"context"
	"fmt"
	"time"

	"github.com/ryadrakem/mms-V2/internal/model"
	"github.com/ryadrakem/mms-V2/internal/recordstore"
)

var sessionFields = []string{
	"name", "objet", "meeting_id", "planification_id", "user_id", "participant_id",
	"meeting_type_id", "state", "actual_start_datetime", "actual_end_datetime",
	"planned_start_datetime", "duration", "is_connected", "is_host", "display_camera",
	"has_remote_participants", "personal_notes", "participant_ids", "subject_order",
}

type loaded struct {
	session      model.Session
	participants []model.Participant
	agenda       []model.AgendaItem
	meetingType  string
	minutes      string
}

func (c *Coordinator) load(ctx context.Context) (loaded, error) {
	var ld loaded
	store := c.deps.Store

	recs, err := store.Read(ctx, model.ModelSession, []int64{c.id}, sessionFields)
	if err != nil {
		return ld, err
	}
	if len(recs) == 0 {
		return ld, fmt.Errorf("session %d: %w", c.id, errSessionNotFound)
	}
	ld.session = decodeSession(recs[0])

	if ids := ld.session.ParticipantIDs; len(ids) > 0 {
		ld.participants, err = ParticipantFetcher(store)(ctx, ids)
		if err != nil {
			return ld, fmt.Errorf("participants: %w", err)
		}
	}

	if ids := ld.session.AgendaIDs; len(ids) > 0 {
		items, err := store.Read(ctx, model.ModelAgenda, ids, []string{"name", "description"})
		if err != nil {
			return ld, fmt.Errorf("agenda: %w", err)
		}
		for _, r := range items {
			ld.agenda = append(ld.agenda, model.AgendaItem{ID: r.ID(), Name: r.String("name"), Description: r.String("description")})
		}
	}

	if id := ld.session.MeetingTypeID; id != 0 {
		types, err := store.Read(ctx, model.ModelMeetingType, []int64{id}, []string{"name"})
		if err != nil {
			return ld, fmt.Errorf("meeting type: %w", err)
		}
		if len(types) > 0 {
			ld.meetingType = types[0].String("name")
		}
	}

	if id := ld.session.MeetingID; id != 0 {
		meetings, err := store.Read(ctx, model.ModelMeeting, []int64{id}, []string{"pv"})
		if err != nil {
			return ld, fmt.Errorf("meeting: %w", err)
		}
		if len(meetings) > 0 {
			ld.minutes = meetings[0].String("pv")
		}
	}
	return ld, nil
}

func decodeSession(r recordstore.Record) model.Session {
	s := model.Session{
		ID:                    r.ID(),
		Name:                  r.String("name"),
		Subject:               r.String("objet"),
		State:                 model.SessionState(r.String("state")),
		PlannedHours:          r.Float("duration"),
		IsConnected:           r.Bool("is_connected"),
		IsHost:                r.Bool("is_host"),
		DisplayCamera:         r.Bool("display_camera"),
		HasRemoteParticipants: r.Bool("has_remote_participants"),
		PersonalNotes:         r.String("personal_notes"),
		ParticipantIDs:        r.IDs("participant_ids"),
		AgendaIDs:             r.IDs("subject_order"),
	}
	if s.State == "" {
		s.State = model.SessionInProgress
	}
	s.MeetingID, _ = r.Ref("meeting_id")
	s.PlanID, _ = r.Ref("planification_id")
	s.UserID, _ = r.Ref("user_id")
	s.ParticipantID, _ = r.Ref("participant_id")
	s.MeetingTypeID, _ = r.Ref("meeting_type_id")
	s.ActualStart = timeField(r, "actual_start_datetime")
	s.ActualEnd = timeField(r, "actual_end_datetime")
	s.PlannedStart = timeField(r, "planned_start_datetime")
	if s.HasRemoteParticipants {
		s.DisplayCamera = true
	}
	return s
}

func timeField(r recordstore.Record, field string) *time.Time {
	t, ok := r.Time(field)
	if !ok {
		return nil
	}
	return &t
}
