package detect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsscope/newswire/internal/news"
)

// RedisStore keeps page hashes in Redis with SETEX semantics, sharing the
// client used by the queue backend.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get returns the stored hash, or "" if the key is absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return val, nil
}

// SetWithTTL stores the hash with an expiry.
func (s *RedisStore) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is the broker-less HashStore, expiring entries lazily on
// read.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	clock   news.Clock
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(clock news.Clock) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memEntry),
		clock:   clock,
	}
}

// Get returns the stored hash, or "" if absent or expired.
func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", nil
	}
	if s.clock.Now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", nil
	}
	return e.value, nil
}

// SetWithTTL stores the hash, replacing any previous value.
func (s *MemoryStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{
		value:     value,
		expiresAt: s.clock.Now().Add(ttl),
	}
	return nil
}
