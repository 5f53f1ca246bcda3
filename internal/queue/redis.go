// Package queue provides the Redis Streams implementation of the ingest
// log. The in-memory fallback lives in the memory subpackage; both satisfy
// news.Queue and are selected once at startup by configuration.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsscope/newswire/internal/news"
)

// PayloadField is the stream field carrying the serialized ArticleRecord.
const PayloadField = "data"

const connectTimeout = 2 * time.Second

// RedisConfig holds connection and stream parameters for the Redis queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// RedisQueue implements news.Queue on Redis Streams. The stream is trimmed
// to MaxLen on every append, so producers are never blocked; delivery
// bookkeeping is the broker's consumer-group state.
type RedisQueue struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedis connects to Redis and returns a stream-backed queue. The
// connection is verified with a ping so a dead broker fails startup
// instead of the first enqueue.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisQueue{
		client: client,
		stream: cfg.Stream,
		maxLen: cfg.MaxLen,
	}, nil
}

// Enqueue appends the payload with an exact MAXLEN trim so the stream never
// exceeds its bound.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: q.maxLen,
		Approx: false,
		Values: map[string]any{PayloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd to %s: %w", q.stream, err)
	}
	return id, nil
}

// CreateGroup creates the consumer group at the stream tail, creating the
// stream if needed. An already existing group is not an error.
func (q *RedisQueue) CreateGroup(ctx context.Context, group string) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", group, err)
	}
	return nil
}

// GroupRead blocks up to block for undelivered messages addressed to this
// consumer; a non-positive block reads without blocking. A timeout yields
// an empty slice, not an error.
func (q *RedisQueue) GroupRead(
	ctx context.Context, group, consumer string, count int64, block time.Duration,
) ([]news.QueueMessage, error) {
	// A zero Block would be sent as BLOCK 0 (wait forever); a negative
	// value omits BLOCK entirely, matching the fallback queue's immediate
	// return.
	if block <= 0 {
		block = -1
	}
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{q.stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup from %s: %w", q.stream, err)
	}

	var msgs []news.QueueMessage
	for _, stream := range streams {
		for _, m := range stream.Messages {
			payload, ok := m.Values[PayloadField].(string)
			if !ok {
				continue
			}
			msgs = append(msgs, news.QueueMessage{ID: m.ID, Payload: []byte(payload)})
		}
	}
	return msgs, nil
}

// Ack removes messages from the group's pending set.
func (q *RedisQueue) Ack(ctx context.Context, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := q.client.XAck(ctx, q.stream, group, ids...).Err(); err != nil {
		return fmt.Errorf("xack on %s: %w", q.stream, err)
	}
	return nil
}

// Len returns the stream length.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.XLen(ctx, q.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen on %s: %w", q.stream, err)
	}
	return n, nil
}

// Stats reports stream and group bookkeeping. A stream that does not exist
// yet reports zeroes.
func (q *RedisQueue) Stats(ctx context.Context) (news.QueueStats, error) {
	var stats news.QueueStats

	info, err := q.client.XInfoStream(ctx, q.stream).Result()
	if err != nil {
		if isMissingStream(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("xinfo stream %s: %w", q.stream, err)
	}
	stats.StreamLength = info.Length
	stats.LastGeneratedID = info.LastGeneratedID

	groups, err := q.client.XInfoGroups(ctx, q.stream).Result()
	if err != nil {
		return stats, fmt.Errorf("xinfo groups %s: %w", q.stream, err)
	}
	stats.Groups = int64(len(groups))
	for _, g := range groups {
		stats.Consumers += g.Consumers
		stats.Pending += g.Pending
	}
	return stats, nil
}

// Ping checks broker reachability.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Client exposes the underlying Redis client so other subsystems (the page
// hash store) can share the connection.
func (q *RedisQueue) Client() *redis.Client {
	return q.client
}

// Close closes the underlying Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func isMissingStream(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such key")
}
