// Package notify delivers user-facing toasts for a live session.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Warning Severity = "warning"
	Danger  Severity = "danger"
)

type Notification struct {
	SessionID int64     `json:"session_id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Title     string    `json:"title,omitempty"`
	At        time.Time `json:"at"`
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes notifications to the structured log.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Notify(_ context.Context, n Notification) error {
	ev := s.Logger.Info()
	switch n.Severity {
	case Warning:
		ev = s.Logger.Warn()
	case Danger:
		ev = s.Logger.Error()
	}
	ev.Str("module", "notify").
		Int64("session_id", n.SessionID).
		Str("severity", string(n.Severity)).
		Str("title", n.Title).
		Msg(n.Message)
	return nil
}
