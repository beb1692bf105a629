package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultErrorKey = "checkflow:last_error"

// ErrorSlot keeps the last user-visible error in a single Redis key so
// every replica reports the same message.
type ErrorSlot struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

type ErrorSlotOption func(*ErrorSlot)

func WithKey(key string) ErrorSlotOption {
	return func(s *ErrorSlot) { s.key = key }
}

// WithTTL expires a stale message; zero keeps it until cleared.
func WithTTL(ttl time.Duration) ErrorSlotOption {
	return func(s *ErrorSlot) { s.ttl = ttl }
}

func NewErrorSlot(client *redis.Client, opts ...ErrorSlotOption) *ErrorSlot {
	s := &ErrorSlot{client: client, key: defaultErrorKey}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *ErrorSlot) Set(ctx context.Context, msg string) error {
	return s.client.Set(ctx, s.key, msg, s.ttl).Err()
}

// Get returns "" when no error is recorded.
func (s *ErrorSlot) Get(ctx context.Context) (string, error) {
	msg, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return msg, err
}

func (s *ErrorSlot) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
