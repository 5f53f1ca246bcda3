// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newsscope/newswire/internal/news"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig            `mapstructure:"server"`
	Redis      RedisConfig             `mapstructure:"redis"`
	Stream     StreamConfig            `mapstructure:"stream"`
	Workers    WorkersConfig           `mapstructure:"workers"`
	Collector  CollectorConfig         `mapstructure:"collector"`
	Enrichment EnrichmentConfig        `mapstructure:"enrichment"`
	DB         DBConfig                `mapstructure:"db"`
	Broadcast  BroadcastConfig         `mapstructure:"broadcast"`
	Logging    LoggingConfig           `mapstructure:"logging"`
	Sources    []news.SourceDescriptor `mapstructure:"sources"`
}

// ServerConfig controls the HTTP/WebSocket server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// RedisConfig controls the queue backend connection. When Enabled is false
// the pipeline runs on the in-memory queue and hash store.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StreamConfig governs the ingest stream and its consumer group.
type StreamConfig struct {
	Key            string `mapstructure:"key"`
	MaxLen         int64  `mapstructure:"max_len"`
	Group          string `mapstructure:"group"`
	BlockTimeoutMs int    `mapstructure:"block_timeout_ms"`
	PrefetchCount  int64  `mapstructure:"prefetch_count"`
}

// WorkersConfig sizes the processing pool.
type WorkersConfig struct {
	Count int `mapstructure:"count"`
}

// CollectorConfig governs the collection loop.
type CollectorConfig struct {
	IntervalSeconds       int     `mapstructure:"interval_seconds"`
	MaxConcurrentFetches  int64   `mapstructure:"max_concurrent_fetches"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds"`
	UserAgent             string  `mapstructure:"user_agent"`
	HashRetentionHours    int     `mapstructure:"hash_retention_hours"`
	PerHostRPS            float64 `mapstructure:"per_host_rps"`
	PerHostBurst          int     `mapstructure:"per_host_burst"`
}

// EnrichmentConfig points at the external analysis service.
type EnrichmentConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Endpoint       string `mapstructure:"endpoint"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	BatchSize      int    `mapstructure:"batch_size"`
}

// DBConfig controls article persistence. An empty DSN selects the
// in-memory store.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	Table        string `mapstructure:"table"`
	MaxOpenConns int32  `mapstructure:"max_open_conns"`
}

// BroadcastConfig controls WebSocket subscriber handling.
type BroadcastConfig struct {
	PingIntervalSeconds int `mapstructure:"ping_interval_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWSWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8765)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("stream.key", "news_stream")
	v.SetDefault("stream.max_len", 10000)
	v.SetDefault("stream.group", "news_processors")
	v.SetDefault("stream.block_timeout_ms", 1000)
	v.SetDefault("stream.prefetch_count", 10)
	v.SetDefault("workers.count", 4)
	v.SetDefault("collector.interval_seconds", 30)
	v.SetDefault("collector.max_concurrent_fetches", 5)
	v.SetDefault("collector.request_timeout_seconds", 10)
	v.SetDefault("collector.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("collector.hash_retention_hours", 168)
	v.SetDefault("collector.per_host_rps", 1.0)
	v.SetDefault("collector.per_host_burst", 2)
	v.SetDefault("enrichment.enabled", false)
	v.SetDefault("enrichment.timeout_seconds", 30)
	v.SetDefault("enrichment.batch_size", 8)
	v.SetDefault("db.table", "articles")
	v.SetDefault("broadcast.ping_interval_seconds", 30)
	v.SetDefault("logging.development", true)
	v.SetDefault("sources", defaultSources())
}

// defaultSources is the out-of-the-box feed list; a sources section in the
// config file replaces it entirely.
func defaultSources() []map[string]any {
	return []map[string]any{
		{
			"name":     "PIB Press Releases",
			"url":      "https://pib.gov.in",
			"feed_url": "https://pib.gov.in/RssMain.aspx?ModId=6&Lang=1",
			"language": "en",
			"region":   "National",
			"category": "Government Press Release",
		},
		{
			"name":     "The Hindu - Politics",
			"url":      "https://www.thehindu.com/news/national/",
			"feed_url": "https://www.thehindu.com/news/national/feeder/default.rss",
			"language": "en",
			"region":   "National",
			"category": "Politics",
		},
		{
			"name":     "Economic Times - Government",
			"url":      "https://economictimes.indiatimes.com/news/economy/policy",
			"feed_url": "https://economictimes.indiatimes.com/news/economy/policy/rssfeeds/1373380680.cms",
			"language": "en",
			"region":   "National",
			"category": "Economy & Finance",
		},
		{
			"name":     "Hindustan Times - India",
			"url":      "https://www.hindustantimes.com/india-news",
			"feed_url": "https://www.hindustantimes.com/feeds/rss/india-news/rssfeed.xml",
			"language": "en",
			"region":   "National",
			"category": "General",
		},
		{
			"name":     "Indian Express - India",
			"url":      "https://indianexpress.com/section/india/",
			"feed_url": "https://indianexpress.com/section/india/feed/",
			"language": "en",
			"region":   "National",
			"category": "General",
		},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Stream.Key == "" {
		return fmt.Errorf("stream.key must be set")
	}
	if c.Stream.MaxLen <= 0 {
		return fmt.Errorf("stream.max_len must be > 0")
	}
	if c.Stream.Group == "" {
		return fmt.Errorf("stream.group must be set")
	}
	if c.Stream.PrefetchCount <= 0 {
		return fmt.Errorf("stream.prefetch_count must be > 0")
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be > 0")
	}
	if c.Collector.IntervalSeconds <= 0 {
		return fmt.Errorf("collector.interval_seconds must be > 0")
	}
	if c.Collector.MaxConcurrentFetches <= 0 {
		return fmt.Errorf("collector.max_concurrent_fetches must be > 0")
	}
	if c.Collector.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("collector.request_timeout_seconds must be > 0")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	if c.Enrichment.Enabled && c.Enrichment.Endpoint == "" {
		return fmt.Errorf("enrichment.endpoint must be set when enrichment is enabled")
	}
	for i, src := range c.Sources {
		if src.Name == "" {
			return fmt.Errorf("sources[%d].name must be set", i)
		}
		if src.URL == "" {
			return fmt.Errorf("sources[%d].url must be set", i)
		}
	}
	return nil
}

// Interval returns the collection cycle interval.
func (c CollectorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// RequestTimeout returns the per-fetch timeout.
func (c CollectorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// HashRetention returns the page-hash expiry window.
func (c CollectorConfig) HashRetention() time.Duration {
	return time.Duration(c.HashRetentionHours) * time.Hour
}

// BlockTimeout returns the group-read block duration.
func (c StreamConfig) BlockTimeout() time.Duration {
	return time.Duration(c.BlockTimeoutMs) * time.Millisecond
}

// Timeout returns the enrichment call budget.
func (c EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PingInterval returns the WebSocket keepalive interval.
func (c BroadcastConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}
