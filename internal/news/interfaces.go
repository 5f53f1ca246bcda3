package news

import (
	"context"
	"time"
)

// QueueMessage is one entry read from the ingest stream. The ID is assigned
// by the queue and is monotonic within a stream.
type QueueMessage struct {
	ID      string
	Payload []byte
}

// Queue is the append-only, length-bounded ingest log with consumer-group
// delivery. Two implementations satisfy it: a Redis Streams backend and an
// in-memory fallback for broker-less deployments. Delivery is
// at-least-once; a message leaves the pending set only on explicit Ack.
type Queue interface {
	// Enqueue appends a payload and returns the assigned message id. Once
	// the stream exceeds its configured maximum length the oldest entries
	// are evicted; producers are never blocked.
	Enqueue(ctx context.Context, payload []byte) (string, error)

	// CreateGroup creates the consumer group. Creating a group that
	// already exists is not an error.
	CreateGroup(ctx context.Context, group string) error

	// GroupRead returns up to count messages not yet acknowledged for the
	// group, blocking up to block if none are available. A non-positive
	// block returns immediately.
	GroupRead(ctx context.Context, group, consumer string, count int64, block time.Duration) ([]QueueMessage, error)

	// Ack marks messages as processed, removing them from the pending set.
	Ack(ctx context.Context, group string, ids ...string) error

	// Len returns the current stream length.
	Len(ctx context.Context) (int64, error)

	// Stats reports stream and consumer-group bookkeeping.
	Stats(ctx context.Context) (QueueStats, error)

	Close() error
}

// ArticleStore persists enriched records. InsertOrIgnore is idempotent on
// the article URL.
type ArticleStore interface {
	InsertOrIgnore(ctx context.Context, record ArticleRecord) error
}

// Enricher is the external analysis boundary. Implementations batch the
// whole slice in one call; records the service cannot score come back
// unchanged. A returned error means the batch was not processed at all.
type Enricher interface {
	EnrichBatch(ctx context.Context, records []ArticleRecord) ([]ArticleRecord, error)
}

// Broadcaster fans a finished record out to connected subscribers.
type Broadcaster interface {
	Broadcast(record ArticleRecord)
}

// ChangeDetector decides whether re-fetched content differs from the last
// version seen for a URL.
type ChangeDetector interface {
	HasChanged(ctx context.Context, url string, content []byte) (bool, error)
}

// Hasher computes digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
