// Package news defines core types shared across subsystems.
package news

import (
	"time"
)

// Source types recorded on collected articles.
const (
	SourceTypeFeed   = "feed"
	SourceTypeScrape = "scrape"
)

// Selectors holds the CSS selectors used to extract articles from a
// source's listing page when no feed is available.
type Selectors struct {
	ArticleContainer string `json:"article_container" mapstructure:"article_container"`
	Title            string `json:"title" mapstructure:"title"`
	Content          string `json:"content" mapstructure:"content"`
	PublishDate      string `json:"publish_date" mapstructure:"publish_date"`
}

// SourceDescriptor describes one external feed or page to poll. The URL is
// the source's stable identity. Descriptors come from configuration and are
// read-only at runtime.
type SourceDescriptor struct {
	Name      string    `json:"name" mapstructure:"name"`
	URL       string    `json:"url" mapstructure:"url"`
	FeedURL   string    `json:"feed_url,omitempty" mapstructure:"feed_url"`
	Selectors Selectors `json:"selectors" mapstructure:"selectors"`
	Language  string    `json:"language" mapstructure:"language"`
	Region    string    `json:"region" mapstructure:"region"`
	Category  string    `json:"category" mapstructure:"category"`
}

// Entity is a named entity recognized by the enrichment service.
type Entity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score,omitempty"`
}

// Enrichment holds the fields produced by the external analysis service.
// All fields are absent until a worker has run the record through the
// enrichment boundary.
type Enrichment struct {
	Sentiment      string   `json:"sentiment"`
	SentimentScore float64  `json:"sentiment_score"`
	Summary        string   `json:"summary,omitempty"`
	Entities       []Entity `json:"entities,omitempty"`
	Category       string   `json:"category,omitempty"`
	Confidence     float64  `json:"confidence"`
}

// ArticleRecord is one collected item. The canonical URL is the natural
// dedup key: storage inserts are keyed on it and repeated inserts of the
// same URL are ignored.
type ArticleRecord struct {
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Source      string      `json:"source"`
	Language    string      `json:"language"`
	Category    string      `json:"category"`
	Region      string      `json:"region"`
	PublishedAt time.Time   `json:"publish_date"`
	CollectedAt time.Time   `json:"collected_date"`
	Content     string      `json:"content"`
	SourceType  string      `json:"source_type"`
	Enrichment  *Enrichment `json:"enrichment,omitempty"`
}

// QueueStats summarizes the ingest stream for monitoring.
type QueueStats struct {
	StreamLength    int64  `json:"stream_length"`
	Groups          int64  `json:"groups"`
	Consumers       int64  `json:"consumers"`
	Pending         int64  `json:"pending"`
	LastGeneratedID string `json:"last_generated_id,omitempty"`
}
