// Package memory provides the single-process fallback for the ingest log,
// used when no broker is configured. It mirrors the stream contract:
// monotonic ids, FIFO delivery, oldest-first eviction past the length
// bound, blocking group reads, and explicit acknowledgment.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newsscope/newswire/internal/news"
)

// ErrClosed is returned for operations on a closed queue.
var ErrClosed = errors.New("queue closed")

type entry struct {
	id      string
	seq     int64
	payload []byte
}

type groupState struct {
	// consumers that have ever read in this group, for stats parity with
	// the broker's XINFO CONSUMERS.
	consumers map[string]struct{}
	// delivered-but-unacked message ids mapped to the last consumer that
	// claimed them. Unlike the broker, any read reclaims these
	// immediately; see the package docs on fairness.
	pending map[string]string
	acked   map[string]struct{}
}

// Queue is a bounded, append-only in-memory log with consumer-group
// delivery. Any un-acked message is redeliverable on the next read in its
// group, which gives at-least-once delivery with looser fairness than a
// real broker: two concurrent consumers may both claim the same entry.
type Queue struct {
	mu      sync.Mutex
	maxLen  int64
	seq     int64
	entries []entry
	groups  map[string]*groupState
	notify  chan struct{}
	closed  bool
}

// New constructs a queue bounded to maxLen entries.
func New(maxLen int64) *Queue {
	if maxLen <= 0 {
		maxLen = 1
	}
	return &Queue{
		maxLen: maxLen,
		groups: make(map[string]*groupState),
		notify: make(chan struct{}),
	}
}

// Enqueue appends a payload, evicting the oldest entries once the bound is
// exceeded, and wakes blocked readers.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("enqueue canceled: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", ErrClosed
	}

	q.seq++
	e := entry{
		id:      fmt.Sprintf("%d-0", q.seq),
		seq:     q.seq,
		payload: append([]byte(nil), payload...),
	}
	q.entries = append(q.entries, e)

	if int64(len(q.entries)) > q.maxLen {
		evicted := q.entries[:int64(len(q.entries))-q.maxLen]
		q.entries = q.entries[int64(len(q.entries))-q.maxLen:]
		for _, old := range evicted {
			for _, g := range q.groups {
				delete(g.pending, old.id)
				delete(g.acked, old.id)
			}
		}
	}

	close(q.notify)
	q.notify = make(chan struct{})
	return e.id, nil
}

// CreateGroup registers a consumer group. Registering an existing group is
// a no-op.
func (q *Queue) CreateGroup(_ context.Context, group string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if _, ok := q.groups[group]; !ok {
		q.groups[group] = &groupState{
			consumers: make(map[string]struct{}),
			pending:   make(map[string]string),
			acked:     make(map[string]struct{}),
		}
	}
	return nil
}

// GroupRead returns up to count un-acked messages in FIFO order, marking
// them pending for the consumer. If none are available it blocks up to
// block (a non-positive block returns immediately). A timeout yields an
// empty slice, not an error.
func (q *Queue) GroupRead(
	ctx context.Context, group, consumer string, count int64, block time.Duration,
) ([]news.QueueMessage, error) {
	deadline := time.Now().Add(block)
	for {
		msgs, wait, err := q.tryRead(group, consumer, count)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
		if block <= 0 {
			return nil, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("group read canceled: %w", ctx.Err())
		case <-wait:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		}
	}
}

func (q *Queue) tryRead(group, consumer string, count int64) ([]news.QueueMessage, chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, ErrClosed
	}

	g, ok := q.groups[group]
	if !ok {
		return nil, nil, fmt.Errorf("unknown consumer group %q", group)
	}
	g.consumers[consumer] = struct{}{}

	var msgs []news.QueueMessage
	for _, e := range q.entries {
		if int64(len(msgs)) >= count {
			break
		}
		if _, done := g.acked[e.id]; done {
			continue
		}
		g.pending[e.id] = consumer
		msgs = append(msgs, news.QueueMessage{ID: e.id, Payload: append([]byte(nil), e.payload...)})
	}
	return msgs, q.notify, nil
}

// Ack marks messages processed. Acking an unknown or evicted id is a no-op.
func (q *Queue) Ack(_ context.Context, group string, ids ...string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	g, ok := q.groups[group]
	if !ok {
		return fmt.Errorf("unknown consumer group %q", group)
	}
	for _, id := range ids {
		delete(g.pending, id)
		g.acked[id] = struct{}{}
	}
	return nil
}

// Len returns the number of retained entries.
func (q *Queue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.entries)), nil
}

// Stats reports bookkeeping equivalent to the broker's XINFO output.
func (q *Queue) Stats(_ context.Context) (news.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := news.QueueStats{
		StreamLength: int64(len(q.entries)),
		Groups:       int64(len(q.groups)),
	}
	if len(q.entries) > 0 {
		stats.LastGeneratedID = q.entries[len(q.entries)-1].id
	}
	for _, g := range q.groups {
		stats.Consumers += int64(len(g.consumers))
		stats.Pending += int64(len(g.pending))
	}
	return stats, nil
}

// Close marks the queue closed and wakes blocked readers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	return nil
}
