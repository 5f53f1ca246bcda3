// Package enrich talks to the external language/sentiment analysis service.
// The service is an opaque boundary: the pipeline sends raw text with a
// language hint and receives sentiment, summary, entities, category, and
// confidence.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/newsscope/newswire/internal/news"
)

// defaultBatchSize bounds one analysis call when no size is configured.
const defaultBatchSize = 8

// Client batches article records to the analysis endpoint over HTTP.
type Client struct {
	endpoint  string
	apiKey    string
	batchSize int
	http      *http.Client
}

// NewClient creates a reusable HTTP client with the configured call budget
// and per-call batch bound.
func NewClient(endpoint, apiKey string, timeout time.Duration, batchSize int) *Client {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Client{
		endpoint:  endpoint,
		apiKey:    apiKey,
		batchSize: batchSize,
		http:      &http.Client{Timeout: timeout},
	}
}

type batchRequest struct {
	Articles []news.ArticleRecord `json:"articles"`
}

type batchResponse struct {
	Articles []news.ArticleRecord `json:"articles"`
}

// EnrichBatch sends the slice in chunks of the configured batch size.
// Records the service returns without enrichment keep their original form.
// A transport or status error on any chunk fails the whole batch; the
// caller decides what stays pending.
func (c *Client) EnrichBatch(ctx context.Context, records []news.ArticleRecord) ([]news.ArticleRecord, error) {
	if len(records) == 0 {
		return records, nil
	}

	out := make([]news.ArticleRecord, 0, len(records))
	for start := 0; start < len(records); start += c.batchSize {
		end := start + c.batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk, err := c.analyze(ctx, records[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}

func (c *Client) analyze(ctx context.Context, records []news.ArticleRecord) ([]news.ArticleRecord, error) {
	body, err := json.Marshal(batchRequest{Articles: records})
	if err != nil {
		return nil, fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrichment call: unexpected status %s", resp.Status)
	}

	var out batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode enrichment response: %w", err)
	}
	if len(out.Articles) != len(records) {
		return nil, fmt.Errorf("enrichment returned %d records for %d inputs", len(out.Articles), len(records))
	}

	// Keep originals for records the service could not score.
	for i := range out.Articles {
		if out.Articles[i].URL == "" {
			out.Articles[i] = records[i]
		}
	}
	return out.Articles, nil
}

// Noop passes records through unchanged; used when enrichment is disabled.
type Noop struct{}

// EnrichBatch returns the input slice as-is.
func (Noop) EnrichBatch(_ context.Context, records []news.ArticleRecord) ([]news.ArticleRecord, error) {
	return records, nil
}
