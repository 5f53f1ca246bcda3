// Package app wires the pipeline together and owns component lifecycles:
// queue backend, consumer group, collector, worker pool, and the
// broadcaster's accept path.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/api"
	"github.com/newsscope/newswire/internal/broadcast"
	"github.com/newsscope/newswire/internal/clock/system"
	"github.com/newsscope/newswire/internal/collector"
	"github.com/newsscope/newswire/internal/config"
	"github.com/newsscope/newswire/internal/detect"
	"github.com/newsscope/newswire/internal/enrich"
	"github.com/newsscope/newswire/internal/hash/sha256"
	"github.com/newsscope/newswire/internal/news"
	"github.com/newsscope/newswire/internal/queue"
	queuemem "github.com/newsscope/newswire/internal/queue/memory"
	storagemem "github.com/newsscope/newswire/internal/storage/memory"
	"github.com/newsscope/newswire/internal/storage/postgres"
	"github.com/newsscope/newswire/internal/worker"
)

const shutdownGrace = 5 * time.Second

// App holds every long-lived component. It is constructed once and passed
// explicitly; there is no global pipeline state.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	queue     news.Queue
	collector *collector.Collector
	pool      *worker.Pool
	hub       *broadcast.Hub
	server    *http.Server

	closeStore func()

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New initializes all services from configuration. A queue backend that
// cannot be reached, or a consumer group that cannot be created, aborts
// startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	clk := system.New()
	hasher := sha256.New()

	var (
		q         news.Queue
		hashStore detect.HashStore
	)
	if cfg.Redis.Enabled {
		logger.Info("connecting to redis", zap.String("addr", cfg.Redis.Addr))
		rq, err := queue.NewRedis(ctx, queue.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Stream.Key,
			MaxLen:   cfg.Stream.MaxLen,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize queue backend: %w", err)
		}
		q = rq
		hashStore = detect.NewRedisStore(rq.Client())
	} else {
		logger.Info("redis disabled, using in-memory queue and hash store")
		q = queuemem.New(cfg.Stream.MaxLen)
		hashStore = detect.NewMemoryStore(clk)
	}

	if err := q.CreateGroup(ctx, cfg.Stream.Group); err != nil {
		closeErr := q.Close()
		if closeErr != nil {
			logger.Warn("close queue after group failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	detector := detect.New(hashStore, hasher, cfg.Collector.HashRetention())

	var (
		store      news.ArticleStore
		closeStore func()
	)
	if cfg.DB.DSN != "" {
		logger.Info("connecting to postgres")
		pg, err := postgres.NewStore(ctx, postgres.StoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxOpenConns,
		})
		if err != nil {
			closeErr := q.Close()
			if closeErr != nil {
				logger.Warn("close queue after store failure", zap.Error(closeErr))
			}
			return nil, fmt.Errorf("initialize article store: %w", err)
		}
		store = pg
		closeStore = pg.Close
	} else {
		logger.Info("db.dsn not set, using in-memory article store")
		store = storagemem.New()
		closeStore = func() {}
	}

	var enricher news.Enricher
	if cfg.Enrichment.Enabled {
		enricher = enrich.NewClient(cfg.Enrichment.Endpoint, cfg.Enrichment.APIKey,
			cfg.Enrichment.Timeout(), cfg.Enrichment.BatchSize)
	} else {
		logger.Info("enrichment disabled, records pass through unscored")
		enricher = enrich.Noop{}
	}

	hub := broadcast.NewHub(clk, logger)

	pool := worker.New(q, enricher, store, hub, worker.Config{
		Group:        cfg.Stream.Group,
		Count:        cfg.Workers.Count,
		Prefetch:     cfg.Stream.PrefetchCount,
		BlockTimeout: cfg.Stream.BlockTimeout(),
	}, logger)

	coll := collector.New(cfg.Sources, q, detector, clk, collector.Config{
		Interval:       cfg.Collector.Interval(),
		RequestTimeout: cfg.Collector.RequestTimeout(),
		UserAgent:      cfg.Collector.UserAgent,
		MaxConcurrent:  cfg.Collector.MaxConcurrentFetches,
		PerHostRPS:     cfg.Collector.PerHostRPS,
		PerHostBurst:   cfg.Collector.PerHostBurst,
	}, logger)

	srv := api.NewServer(hub, q, cfg.Broadcast.PingInterval(), logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		queue:     q,
		collector: coll,
		pool:      pool,
		hub:       hub,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		closeStore: closeStore,
	}, nil
}

// Run starts the broadcaster's accept path, the worker pool, and the
// collection loop, then blocks until the context finishes or the HTTP
// server fails. Shutdown runs before Run returns.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pool.Run(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.collector.Run(runCtx)
	}()

	select {
	case <-ctx.Done():
		a.Shutdown()
		return nil
	case err := <-serverErr:
		a.Shutdown()
		return fmt.Errorf("http server: %w", err)
	}
}

// CollectOnce runs a single collection cycle; used by the one-shot CLI
// command.
func (a *App) CollectOnce(ctx context.Context) {
	a.collector.CollectOnce(ctx)
}

// Shutdown stops components in order: collector, workers, broadcaster
// accept path, queue backend. It is idempotent and safe to call from any
// goroutine.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down")

		a.collector.Stop()
		a.pool.Stop()
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("http server shutdown", zap.Error(err))
		}
		a.hub.CloseAll()

		if err := a.queue.Close(); err != nil {
			a.logger.Warn("close queue", zap.Error(err))
		}
		a.closeStore()

		a.logger.Info("shutdown complete")
		_ = a.logger.Sync()
	})
}
