// Package video adapts an external conferencing widget: joining, commands
// and the asynchronous events it reports back.
package video

import (
	"context"
	"errors"
)

var ErrDisposed = errors.New("conference disposed")

type EventKind string

const (
	EventJoined            EventKind = "joined"
	EventParticipantJoined EventKind = "participantJoined"
	EventParticipantLeft   EventKind = "participantLeft"
	EventKnocking          EventKind = "knocking"
	EventLeft              EventKind = "left"
	EventJoinFailed        EventKind = "joinFailed"
)

type Event struct {
	Kind          EventKind `json:"event"`
	LocalID       string    `json:"id,omitempty"`
	ParticipantID string    `json:"participant_id,omitempty"`
	Name          string    `json:"name,omitempty"`
	Reason        string    `json:"reason,omitempty"`
}

type Command string

const (
	ToggleAudio    Command = "toggleAudio"
	ToggleVideo    Command = "toggleVideo"
	AnswerKnocking Command = "answerKnockingParticipant"
	Kick           Command = "kickParticipant"
	Hangup         Command = "hangup"
)

type JoinConfig struct {
	SessionID   int64  `json:"session_id"`
	Domain      string `json:"domain"`
	RoomName    string `json:"room_name"`
	Token       string `json:"jwt"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Moderator   bool   `json:"is_moderator"`
}

type ParticipantInfo struct {
	ID          string `json:"participantId"`
	DisplayName string `json:"displayName"`
}

type Provider interface {
	Initialize(ctx context.Context, cfg JoinConfig) (Conference, error)
}

// Conference is one live handle. Events is closed by Dispose, and Dispose is
// safe to call more than once.
type Conference interface {
	Events() <-chan Event
	Execute(ctx context.Context, cmd Command, args ...any) error
	Participants(ctx context.Context) ([]ParticipantInfo, error)
	Dispose() error
}
