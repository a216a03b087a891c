package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore provides the engine's short-lived coordination primitives:
// mutual-exclusion locks (payout selection vs refund) and webhook replay
// dedupe markers. Durable state lives in Postgres; Redis only narrows races.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings the Redis instance
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// AcquireLock takes a named lock for at most ttl. It returns false when
// another holder has it, and a release func that is safe to defer.
func (s *RedisStore) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, func(), error) {
	ok, err := s.client.SetNX(ctx, "lock:"+key, 1, ttl).Result()
	if err != nil || !ok {
		return false, func() {}, err
	}
	release := func() {
		_ = s.client.Del(context.WithoutCancel(ctx), "lock:"+key).Err()
	}
	return true, release, nil
}

// EventSeen reports whether a webhook event key is already marked inside
// the dedupe window. This is a fast-path backstop; the payment row lock is
// the real idempotency guarantee.
func (s *RedisStore) EventSeen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, "webhook:"+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEventSeen records a webhook event key for the dedupe window. Callers
// mark only after the event's effects are durably persisted, so a retry of
// a failed delivery is never swallowed as a duplicate.
func (s *RedisStore) MarkEventSeen(ctx context.Context, key string, window time.Duration) error {
	return s.client.SetNX(ctx, "webhook:"+key, 1, window).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
