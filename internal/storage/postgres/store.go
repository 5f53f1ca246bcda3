// Package postgres provides the Postgres-backed article store.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsscope/newswire/internal/news"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool for article rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes article records into Postgres, keyed by URL.
type Store struct {
	pool  execCloser
	table string
}

// NewStore creates a Postgres-backed Store using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: table}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool execCloser, table string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "articles"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: pool, table: table}, nil
}

// InsertOrIgnore inserts the record; a row with the same URL already
// present leaves the table unchanged.
func (s *Store) InsertOrIgnore(ctx context.Context, rec news.ArticleRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (
			url, title, source, language, category, region,
			published_at, collected_at, content, source_type,
			sentiment, sentiment_score, summary, ai_category, confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (url) DO NOTHING`, s.table)

	var (
		sentiment      *string
		sentimentScore *float64
		summary        *string
		aiCategory     *string
		confidence     *float64
	)
	if e := rec.Enrichment; e != nil {
		sentiment = &e.Sentiment
		sentimentScore = &e.SentimentScore
		summary = &e.Summary
		aiCategory = &e.Category
		confidence = &e.Confidence
	}

	_, err := s.pool.Exec(ctx, query,
		rec.URL, rec.Title, rec.Source, rec.Language, rec.Category, rec.Region,
		rec.PublishedAt, rec.CollectedAt, rec.Content, rec.SourceType,
		sentiment, sentimentScore, summary, aiCategory, confidence,
	)
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
