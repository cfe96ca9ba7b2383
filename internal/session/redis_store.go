package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStateStore is the Redis-backed single-use state store. Entries expire
// on their own; Consume removes them early.
type RedisStateStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: "authstate:",
	}
}

func (s *RedisStateStore) key(state string) string {
	return s.prefix + state
}

func (s *RedisStateStore) Put(ctx context.Context, state string, ttl time.Duration) error {
	if state == "" {
		return fmt.Errorf("session: missing state")
	}
	if ttl <= 0 {
		return fmt.Errorf("session: ttl must be positive")
	}
	return s.client.Set(ctx, s.key(state), "1", ttl).Err()
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (bool, error) {
	err := s.client.GetDel(ctx, s.key(state)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
