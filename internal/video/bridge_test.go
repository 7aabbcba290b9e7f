package video

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type captureSender struct {
	mu     sync.Mutex
	frames []outFrame
	err    error
	onSend func(outFrame)
}

func (s *captureSender) Send(sessionID int64, frame any) error {
	f := frame.(outFrame)
	s.mu.Lock()
	s.frames = append(s.frames, f)
	hook := s.onSend
	err := s.err
	s.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return err
}

func (s *captureSender) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Type
	}
	return out
}

func TestBridgeRoutesEventsToConference(t *testing.T) {
	sender := &captureSender{}
	b := NewBridge(sender, zerolog.Nop())

	conf, err := b.Initialize(context.Background(), JoinConfig{SessionID: 42, RoomName: "app/odoo-meeting-7"})
	if err != nil {
		t.Fatalf("Initialize returned err: %v", err)
	}
	b.Dispatch(42, []byte(`{"type":"video_event","event":"knocking","participant_id":"p9","name":"Guest 9"}`))

	select {
	case ev := <-conf.Events():
		if ev.Kind != EventKnocking || ev.ParticipantID != "p9" || ev.Name != "Guest 9" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("event not delivered")
	}
	if got := sender.types(); len(got) != 1 || got[0] != "video_join" {
		t.Fatalf("expected join frame, got %v", got)
	}
}

func TestBridgeParticipantsQueryRoundTrip(t *testing.T) {
	sender := &captureSender{}
	b := NewBridge(sender, zerolog.Nop())
	sender.onSend = func(f outFrame) {
		if f.Type != "video_query" {
			return
		}
		reply, _ := json.Marshal(map[string]any{
			"type":         "video_participants",
			"request_id":   f.RequestID,
			"participants": []map[string]string{{"participantId": "a"}, {"participantId": "b"}},
		})
		go b.Dispatch(42, reply)
	}

	conf, err := b.Initialize(context.Background(), JoinConfig{SessionID: 42})
	if err != nil {
		t.Fatalf("Initialize returned err: %v", err)
	}
	ps, err := conf.Participants(context.Background())
	if err != nil {
		t.Fatalf("Participants returned err: %v", err)
	}
	if len(ps) != 2 || ps[1].ID != "b" {
		t.Fatalf("unexpected participants %+v", ps)
	}
}

func TestBridgeDisposeIsIdempotentAndStopsCommands(t *testing.T) {
	sender := &captureSender{}
	b := NewBridge(sender, zerolog.Nop())
	conf, err := b.Initialize(context.Background(), JoinConfig{SessionID: 5})
	if err != nil {
		t.Fatalf("Initialize returned err: %v", err)
	}

	if err := conf.Dispose(); err != nil {
		t.Fatalf("Dispose returned err: %v", err)
	}
	if err := conf.Dispose(); err != nil {
		t.Fatalf("second Dispose returned err: %v", err)
	}
	if _, ok := <-conf.Events(); ok {
		t.Fatalf("expected closed events channel")
	}
	if err := conf.Execute(context.Background(), Hangup); !errors.Is(err, ErrDisposed) {
		t.Fatalf("expected ErrDisposed, got %v", err)
	}
	// Frames for a released session are dropped.
	b.Dispatch(5, []byte(`{"type":"video_event","event":"left"}`))
}

func TestBridgeInitializeFailsWithoutPage(t *testing.T) {
	sender := &captureSender{err: errors.New("no connection")}
	b := NewBridge(sender, zerolog.Nop())
	if _, err := b.Initialize(context.Background(), JoinConfig{SessionID: 1}); err == nil {
		t.Fatalf("expected error when the page is not connected")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.confs) != 0 {
		t.Fatalf("expected failed conference to be released")
	}
}
