package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher is the slice of a redis client used to fan out notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisSink publishes each notification on "<prefix>.<session id>" so every
// process serving that session can relay it.
type RedisSink struct {
	client Publisher
	prefix string
	now    func() time.Time
}

func NewRedisSink(client Publisher, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "mms.notifications"
	}
	return &RedisSink{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisSink) Channel(sessionID int64) string {
	return fmt.Sprintf("%s.%d", s.prefix, sessionID)
}

func (s *RedisSink) Notify(ctx context.Context, n Notification) error {
	if n.At.IsZero() {
		n.At = s.now().UTC()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := s.client.Publish(ctx, s.Channel(n.SessionID), data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
