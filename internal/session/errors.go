package session

import (
	"errors"
	"fmt"
)

var (
	ErrMissingIdentifier = errors.New("no session id provided")
	ErrUnauthorized      = errors.New("host only action")
	ErrInvalidState      = errors.New("operation not allowed in current state")
	ErrBusy              = errors.New("operation already in flight")
	ErrRetriesExhausted  = errors.New("connection retries exhausted")
	ErrNotConnected      = errors.New("video conference not connected")
	ErrInvalidAction     = errors.New("invalid action item")
	ErrInvalidTab        = errors.New("unknown tab")
	ErrNoMeeting         = errors.New("session has no meeting")
)

// ProviderError is a video join or command failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("video %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// End meeting commit stages, in commit order.
const (
	StageSessions = "sessions"
	StagePlan     = "plan"
	StageMeeting  = "meeting"
)

// StageError names the end meeting stage whose write failed. Earlier
// stages stay committed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("end meeting: %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
