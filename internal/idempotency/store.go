// Package idempotency caches submission responses keyed by the
// client-supplied X-Idempotency-Key. It is a best-effort convenience over
// at-least-once delivery: losing an entry at worst degrades to a duplicate
// enqueue, which the channel workers already tolerate.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "idempotency:"
	DefaultTTL = 24 * time.Hour
)

// Record is the cached outcome of a completed submission.
type Record struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
	StoredAt int64           `json:"timestamp"`
}

// Store is the idempotency capability. Get returns (nil, nil) for a
// missing key. Callers own the fail-open policy on backend errors.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Put(ctx context.Context, key string, rec *Record, ttl time.Duration) error
}

// RedisStore backs the capability with a TTL-bounded Redis key space.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Key returns the namespaced Redis key for an idempotency key.
func (s *RedisStore) Key(key string) string {
	return keyPrefix + key
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency get: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("idempotency decode: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, rec *Record, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("empty idempotency key")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("idempotency encode: %w", err)
	}
	if err := s.client.Set(ctx, s.Key(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("idempotency put: %w", err)
	}
	return nil
}

// Noop disables idempotency caching (local mode without Redis).
type Noop struct{}

func (Noop) Get(context.Context, string) (*Record, error) { return nil, nil }

func (Noop) Put(context.Context, string, *Record, time.Duration) error { return nil }
