// Package collector polls configured news sources, detects changes, and
// feeds collected articles into the ingest queue.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/newsscope/newswire/internal/metrics"
	"github.com/newsscope/newswire/internal/news"
)

const (
	// maxFeedEntries bounds how many entries of a feed are normalized per
	// cycle.
	maxFeedEntries = 10
	// maxScrapeItems bounds how many article containers are extracted from
	// a changed page.
	maxScrapeItems = 5
	// maxBodyBytes caps response bodies so a misbehaving source cannot
	// exhaust memory.
	maxBodyBytes = 5 << 20
)

// Config controls collection behavior.
type Config struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	MaxConcurrent  int64
	PerHostRPS     float64
	PerHostBurst   int
}

// Collector runs the periodic collection cycle over all configured sources.
type Collector struct {
	sources  []news.SourceDescriptor
	queue    news.Queue
	detector news.ChangeDetector
	clock    news.Clock
	client   *http.Client
	sem      *semaphore.Weighted
	hosts    *hostLimiter
	cfg      Config
	logger   *zap.Logger

	running atomic.Bool

	mu        sync.Mutex
	lastCheck map[string]time.Time
}

// New constructs a Collector. The HTTP client carries no timeout of its
// own; every fetch is bounded by a per-request context deadline.
func New(
	sources []news.SourceDescriptor,
	queue news.Queue,
	detector news.ChangeDetector,
	clock news.Clock,
	cfg Config,
	logger *zap.Logger,
) *Collector {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &Collector{
		sources:   sources,
		queue:     queue,
		detector:  detector,
		clock:     clock,
		client:    &http.Client{},
		sem:       semaphore.NewWeighted(cfg.MaxConcurrent),
		hosts:     newHostLimiter(cfg.PerHostRPS, cfg.PerHostBurst),
		cfg:       cfg,
		logger:    logger,
		lastCheck: make(map[string]time.Time),
	}
}

// Run executes collection cycles until the context finishes or Stop is
// called.
func (c *Collector) Run(ctx context.Context) {
	c.running.Store(true)
	c.logger.Info("starting collection loop",
		zap.Int("sources", len(c.sources)),
		zap.Duration("interval", c.cfg.Interval),
	)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for c.running.Load() {
		c.CollectOnce(ctx)
		select {
		case <-ctx.Done():
			c.logger.Info("collection loop stopped")
			return
		case <-ticker.C:
		}
	}
	c.logger.Info("collection loop stopped")
}

// Stop flips the running flag; the loop exits at the next cycle boundary.
func (c *Collector) Stop() {
	c.running.Store(false)
}

// CollectOnce runs a single cycle over all sources that are due. Per-source
// failures are logged and never abort the cycle for other sources.
func (c *Collector) CollectOnce(ctx context.Context) {
	var wg sync.WaitGroup
	for _, src := range c.sources {
		if !c.shouldCheck(src.Name) {
			continue
		}
		wg.Add(1)
		go func(src news.SourceDescriptor) {
			defer wg.Done()
			if err := c.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer c.sem.Release(1)
			c.collectSource(ctx, src)
		}(src)
	}
	wg.Wait()
}

// shouldCheck enforces the per-source minimum inter-check interval.
func (c *Collector) shouldCheck(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	last, ok := c.lastCheck[name]
	if ok && now.Sub(last) < c.cfg.Interval {
		return false
	}
	c.lastCheck[name] = now
	return true
}

func (c *Collector) collectSource(ctx context.Context, src news.SourceDescriptor) {
	c.logger.Debug("checking source", zap.String("source", src.Name))

	records, err := c.collectFromFeed(ctx, src)
	if err != nil {
		c.logger.Warn("feed collection failed",
			zap.String("source", src.Name), zap.Error(err))
	}
	if len(records) == 0 {
		records, err = c.collectFromPage(ctx, src)
		if err != nil {
			c.logger.Error("page collection failed",
				zap.String("source", src.Name), zap.Error(err))
			return
		}
	}
	if len(records) == 0 {
		return
	}

	metrics.ArticlesCollected.WithLabelValues(src.Name).Add(float64(len(records)))
	c.enqueue(ctx, src, records)
}

// collectFromFeed is the fast path: fetch and parse the configured feed.
func (c *Collector) collectFromFeed(ctx context.Context, src news.SourceDescriptor) ([]news.ArticleRecord, error) {
	if src.FeedURL == "" {
		return nil, nil
	}
	body, err := c.fetch(ctx, src.FeedURL)
	if err != nil {
		return nil, err
	}
	return c.parseFeed(body, src)
}

// collectFromPage is the fallback: fetch the listing page, and only when
// its content changed, extract articles via the source's selectors.
func (c *Collector) collectFromPage(ctx context.Context, src news.SourceDescriptor) ([]news.ArticleRecord, error) {
	body, err := c.fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	changed, err := c.detector.HasChanged(ctx, src.URL, body)
	if err != nil {
		return nil, fmt.Errorf("change detection: %w", err)
	}
	if !changed {
		c.logger.Debug("no changes detected", zap.String("source", src.Name))
		return nil, nil
	}
	return c.extractArticles(body, src)
}

func (c *Collector) enqueue(ctx context.Context, src news.SourceDescriptor, records []news.ArticleRecord) {
	queued := 0
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			c.logger.Error("marshal record failed",
				zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		if _, err := c.queue.Enqueue(ctx, payload); err != nil {
			c.logger.Error("enqueue failed",
				zap.String("url", rec.URL), zap.Error(err))
			continue
		}
		queued++
	}
	if queued > 0 {
		metrics.ArticlesEnqueued.Add(float64(queued))
		c.logger.Info("queued articles",
			zap.String("source", src.Name), zap.Int("count", queued))
	}
}

// fetch retrieves a URL bounded by the per-request timeout and the per-host
// rate limiter.
func (c *Collector) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := c.hosts.Wait(ctx, url); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
