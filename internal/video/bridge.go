package video

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sender pushes a frame to the browser tabs attached to a session.
type Sender interface {
	Send(sessionID int64, frame any) error
}

type outFrame struct {
	Type      string      `json:"type"`
	Config    *JoinConfig `json:"config,omitempty"`
	Command   Command     `json:"command,omitempty"`
	Args      []any       `json:"args,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type inFrame struct {
	Type         string            `json:"type"`
	RequestID    string            `json:"request_id,omitempty"`
	Participants []ParticipantInfo `json:"participants,omitempty"`
	Event
}

// Bridge drives the widget embedded in the session page. Commands travel
// to the page as frames; the page reports widget events back through
// Dispatch.
type Bridge struct {
	sender       Sender
	log          zerolog.Logger
	queryTimeout time.Duration

	mu    sync.Mutex
	confs map[int64]*bridgeConference
}

func NewBridge(sender Sender, log zerolog.Logger) *Bridge {
	return &Bridge{
		sender:       sender,
		log:          log.With().Str("module", "video").Logger(),
		queryTimeout: 3 * time.Second,
		confs:        make(map[int64]*bridgeConference),
	}
}

func (b *Bridge) Initialize(ctx context.Context, cfg JoinConfig) (Conference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conf := &bridgeConference{
		bridge:    b,
		sessionID: cfg.SessionID,
		events:    make(chan Event, 64),
		pending:   make(map[string]chan []ParticipantInfo),
	}

	b.mu.Lock()
	prev := b.confs[cfg.SessionID]
	b.confs[cfg.SessionID] = conf
	b.mu.Unlock()
	if prev != nil {
		_ = prev.Dispose()
	}

	if err := b.sender.Send(cfg.SessionID, outFrame{Type: "video_join", Config: &cfg}); err != nil {
		_ = conf.Dispose()
		return nil, err
	}
	return conf, nil
}

// Dispatch routes one inbound frame from the session page.
func (b *Bridge) Dispatch(sessionID int64, data []byte) {
	var f inFrame
	if err := json.Unmarshal(data, &f); err != nil {
		b.log.Warn().Err(err).Int64("session_id", sessionID).Msg("bad frame")
		return
	}

	b.mu.Lock()
	conf := b.confs[sessionID]
	b.mu.Unlock()
	if conf == nil {
		b.log.Debug().Int64("session_id", sessionID).Str("type", f.Type).Msg("frame without conference")
		return
	}

	switch f.Type {
	case "video_event":
		conf.push(f.Event)
	case "video_participants":
		conf.answer(f.RequestID, f.Participants)
	default:
		b.log.Warn().Int64("session_id", sessionID).Str("type", f.Type).Msg("unknown frame")
	}
}

func (b *Bridge) release(conf *bridgeConference) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.confs[conf.sessionID] == conf {
		delete(b.confs, conf.sessionID)
	}
}

type bridgeConference struct {
	bridge    *Bridge
	sessionID int64

	mu       sync.Mutex
	events   chan Event
	pending  map[string]chan []ParticipantInfo
	disposed bool
}

func (c *bridgeConference) Events() <-chan Event { return c.events }

func (c *bridgeConference) push(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.bridge.log.Warn().Int64("session_id", c.sessionID).Str("event", string(ev.Kind)).Msg("event dropped: backpressure")
	}
}

func (c *bridgeConference) answer(requestID string, ps []ParticipantInfo) {
	c.mu.Lock()
	ch, ok := c.pending[requestID]
	delete(c.pending, requestID)
	c.mu.Unlock()
	if ok {
		ch <- ps
	}
}

func (c *bridgeConference) Execute(ctx context.Context, cmd Command, args ...any) error {
	c.mu.Lock()
	disposed := c.disposed
	c.mu.Unlock()
	if disposed {
		return ErrDisposed
	}
	return c.bridge.sender.Send(c.sessionID, outFrame{Type: "video_command", Command: cmd, Args: args})
}

func (c *bridgeConference) Participants(ctx context.Context) ([]ParticipantInfo, error) {
	id := uuid.NewString()
	ch := make(chan []ParticipantInfo, 1)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, ErrDisposed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}
	if err := c.bridge.sender.Send(c.sessionID, outFrame{Type: "video_query", RequestID: id}); err != nil {
		cleanup()
		return nil, err
	}

	timer := time.NewTimer(c.bridge.queryTimeout)
	defer timer.Stop()
	select {
	case ps := <-ch:
		return ps, nil
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	case <-timer.C:
		cleanup()
		return nil, errors.New("participants query timed out")
	}
}

func (c *bridgeConference) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	close(c.events)
	c.mu.Unlock()

	c.bridge.release(c)
	// The page may already be gone; a failed dispose frame is not an error.
	_ = c.bridge.sender.Send(c.sessionID, outFrame{Type: "video_dispose"})
	return nil
}
