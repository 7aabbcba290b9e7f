package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	return redis.NewIntResult(1, f.err)
}

func TestRedisSinkPublishesPerSessionChannel(t *testing.T) {
	pub := &fakePublisher{}
	s := NewRedisSink(pub, "mms.toast")

	err := s.Notify(context.Background(), Notification{SessionID: 42, Message: "Meeting ended successfully", Severity: Success})
	if err != nil {
		t.Fatalf("Notify returned err: %v", err)
	}
	if pub.channel != "mms.toast.42" {
		t.Fatalf("unexpected channel %s", pub.channel)
	}
	var got Notification
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if got.Severity != Success || got.At.IsZero() {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestRedisSinkWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("conn refused")}
	s := NewRedisSink(pub, "")
	if err := s.Notify(context.Background(), Notification{SessionID: 1}); err == nil {
		t.Fatalf("expected publish error")
	}
	if pub.channel != "mms.notifications.1" {
		t.Fatalf("expected default prefix, got %s", pub.channel)
	}
}

func TestMultiDeliversToEverySink(t *testing.T) {
	var buf bytes.Buffer
	rec := &Recorder{}
	m := Multi{rec, nil, LogSink{Logger: zerolog.New(&buf)}}

	if err := m.Notify(context.Background(), Notification{SessionID: 3, Message: "Only hosts can end the meeting", Severity: Warning}); err != nil {
		t.Fatalf("Notify returned err: %v", err)
	}
	if got := rec.Messages(Warning); len(got) != 1 {
		t.Fatalf("expected one warning, got %v", got)
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("expected warn log line, got %s", buf.String())
	}
}
