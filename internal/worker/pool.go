// Package worker implements the consumer pool that drains the ingest
// queue, runs records through the enrichment boundary, persists them, and
// triggers broadcast.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/metrics"
	"github.com/newsscope/newswire/internal/news"
)

// errorPause is the backoff after a read error before the loop retries.
const errorPause = time.Second

// Config controls Pool behavior.
type Config struct {
	Group        string
	Count        int
	Prefetch     int64
	BlockTimeout time.Duration
}

// Pool runs Count consumers in one group. Each consumer block-reads a
// batch, decodes payloads, enriches the batch in one call, then stores,
// broadcasts, and acks per message. Messages that fail any step stay
// un-acked (at-least-once).
type Pool struct {
	queue       news.Queue
	enricher    news.Enricher
	store       news.ArticleStore
	broadcaster news.Broadcaster
	cfg         Config
	logger      *zap.Logger
	running     atomic.Bool
}

// New constructs a Pool.
func New(
	queue news.Queue,
	enricher news.Enricher,
	store news.ArticleStore,
	broadcaster news.Broadcaster,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if cfg.Count <= 0 {
		cfg.Count = 1
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Pool{
		queue:       queue,
		enricher:    enricher,
		store:       store,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
	}
}

// Run starts all consumers and blocks until they exit.
func (p *Pool) Run(ctx context.Context) {
	p.running.Store(true)
	p.logger.Info("starting workers",
		zap.Int("count", p.cfg.Count), zap.String("group", p.cfg.Group))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Count; i++ {
		wg.Add(1)
		go func(consumer string) {
			defer wg.Done()
			p.runConsumer(ctx, consumer)
		}(fmt.Sprintf("processor-%d", i))
	}
	wg.Wait()
}

// Stop flips the running flag; consumers exit at their next iteration.
func (p *Pool) Stop() {
	p.running.Store(false)
}

func (p *Pool) runConsumer(ctx context.Context, consumer string) {
	log := p.logger.With(zap.String("consumer", consumer))
	log.Info("worker started")
	defer log.Info("worker stopped")

	for p.running.Load() {
		msgs, err := p.queue.GroupRead(ctx, p.cfg.Group, consumer, p.cfg.Prefetch, p.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("group read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(errorPause):
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if len(msgs) == 0 {
			continue
		}
		p.processBatch(ctx, log, msgs)
	}
}

// processBatch decodes the slice, enriches it in one call, then finishes
// each message individually. An enrichment failure leaves every message in
// the batch pending; per-message decode or storage failures leave only that
// message pending.
func (p *Pool) processBatch(ctx context.Context, log *zap.Logger, msgs []news.QueueMessage) {
	type item struct {
		id  string
		rec news.ArticleRecord
	}

	items := make([]item, 0, len(msgs))
	records := make([]news.ArticleRecord, 0, len(msgs))
	for _, msg := range msgs {
		var rec news.ArticleRecord
		if err := json.Unmarshal(msg.Payload, &rec); err != nil {
			log.Error("decode payload failed",
				zap.String("message_id", msg.ID), zap.Error(err))
			continue
		}
		items = append(items, item{id: msg.ID, rec: rec})
		records = append(records, rec)
	}
	if len(items) == 0 {
		return
	}

	enriched, err := p.enricher.EnrichBatch(ctx, records)
	if err != nil {
		metrics.EnrichmentFailures.Inc()
		log.Error("enrichment failed, batch stays pending",
			zap.Int("messages", len(items)), zap.Error(err))
		return
	}

	for i, it := range items {
		rec := enriched[i]
		if err := p.store.InsertOrIgnore(ctx, rec); err != nil {
			log.Error("store article failed",
				zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		p.broadcaster.Broadcast(rec)
		if err := p.queue.Ack(ctx, p.cfg.Group, it.id); err != nil {
			log.Error("ack failed",
				zap.String("message_id", it.id), zap.Error(err))
			continue
		}
		metrics.ArticlesProcessed.Inc()
		log.Debug("processed article",
			zap.String("message_id", it.id), zap.String("title", rec.Title))
	}
}
