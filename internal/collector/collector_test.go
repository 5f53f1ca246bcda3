package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsscope/newswire/internal/news"
)

type fakeQueue struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, payload []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.payloads = append(q.payloads, append([]byte(nil), payload...))
	return fmt.Sprintf("%d-0", len(q.payloads)), nil
}

func (q *fakeQueue) CreateGroup(context.Context, string) error { return nil }

func (q *fakeQueue) GroupRead(context.Context, string, string, int64, time.Duration) ([]news.QueueMessage, error) {
	return nil, nil
}

func (q *fakeQueue) Ack(context.Context, string, ...string) error { return nil }
func (q *fakeQueue) Len(context.Context) (int64, error)           { return 0, nil }
func (q *fakeQueue) Stats(context.Context) (news.QueueStats, error) {
	return news.QueueStats{}, nil
}
func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) records(t *testing.T) []news.ArticleRecord {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]news.ArticleRecord, 0, len(q.payloads))
	for _, p := range q.payloads {
		var rec news.ArticleRecord
		require.NoError(t, json.Unmarshal(p, &rec))
		out = append(out, rec)
	}
	return out
}

type fakeDetector struct {
	changed bool
	err     error
}

func (d *fakeDetector) HasChanged(context.Context, string, []byte) (bool, error) {
	return d.changed, d.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func testConfig() Config {
	return Config{
		Interval:       time.Hour,
		RequestTimeout: 2 * time.Second,
		UserAgent:      "newswire-test",
		MaxConcurrent:  5,
	}
}

func rssBody(items int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><rss version="2.0"><channel><title>Feed</title>`)
	for i := 0; i < items; i++ {
		fmt.Fprintf(&b, `<item>
			<title>Headline %d</title>
			<link>https://example.com/story-%d</link>
			<description>Body %d</description>
			<pubDate>Mon, 02 Jun 2025 10:0%d:00 GMT</pubDate>
		</item>`, i, i, i, i%10)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

func TestCollector_FeedFastPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "newswire-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(rssBody(3)))
	}))
	defer srv.Close()

	q := &fakeQueue{}
	clock := &fakeClock{now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	src := news.SourceDescriptor{
		Name: "example", URL: "https://example.com", FeedURL: srv.URL + "/rss",
		Language: "en", Category: "business", Region: "us",
	}
	c := New([]news.SourceDescriptor{src}, q, &fakeDetector{}, clock, testConfig(), zap.NewNop())

	c.CollectOnce(context.Background())

	recs := q.records(t)
	require.Len(t, recs, 3)
	require.Equal(t, "Headline 0", recs[0].Title)
	require.Equal(t, "https://example.com/story-0", recs[0].URL)
	require.Equal(t, "example", recs[0].Source)
	require.Equal(t, "en", recs[0].Language)
	require.Equal(t, news.SourceTypeFeed, recs[0].SourceType)
	require.Equal(t, clock.now, recs[0].CollectedAt)
	require.Equal(t, time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC), recs[0].PublishedAt)
}

func TestCollector_FeedCapsEntries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(rssBody(15)))
	}))
	defer srv.Close()

	q := &fakeQueue{}
	src := news.SourceDescriptor{Name: "example", URL: "https://example.com", FeedURL: srv.URL}
	c := New([]news.SourceDescriptor{src}, q, &fakeDetector{}, &fakeClock{now: time.Now().UTC()}, testConfig(), zap.NewNop())

	c.CollectOnce(context.Background())

	require.Len(t, q.records(t), maxFeedEntries)
}

func TestCollector_ScrapeFallbackOnChange(t *testing.T) {
	t.Parallel()

	page := `<html><body>
		<div class="story"><h2>First story</h2><a href="/a/1">read</a><time datetime="2025-06-01T08:00:00Z">x</time></div>
		<div class="story"><h2>Second story</h2><a href="https://other.example.com/b">read</a></div>
		<div class="story"><h2></h2><a href="/no-title">read</a></div>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	q := &fakeQueue{}
	clock := &fakeClock{now: time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)}
	src := news.SourceDescriptor{
		Name: "example", URL: srv.URL,
		Selectors: news.Selectors{ArticleContainer: "div.story", Title: "h2", PublishDate: "time"},
	}
	c := New([]news.SourceDescriptor{src}, q, &fakeDetector{changed: true}, clock, testConfig(), zap.NewNop())

	c.CollectOnce(context.Background())

	recs := q.records(t)
	require.Len(t, recs, 2)
	require.Equal(t, "First story", recs[0].Title)
	require.Equal(t, srv.URL+"/a/1", recs[0].URL)
	require.Equal(t, time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC), recs[0].PublishedAt)
	require.Equal(t, news.SourceTypeScrape, recs[0].SourceType)
	require.Equal(t, "https://other.example.com/b", recs[1].URL)
	require.Equal(t, clock.now, recs[1].PublishedAt)
}

func TestCollector_ScrapeCapsItems(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 8; i++ {
		fmt.Fprintf(&b, `<article><h2>Story %d</h2><a href="/s/%d">read</a></article>`, i, i)
	}
	b.WriteString("</body></html>")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(b.String()))
	}))
	defer srv.Close()

	q := &fakeQueue{}
	src := news.SourceDescriptor{Name: "example", URL: srv.URL}
	c := New([]news.SourceDescriptor{src}, q, &fakeDetector{changed: true}, &fakeClock{now: time.Now().UTC()}, testConfig(), zap.NewNop())

	c.CollectOnce(context.Background())

	require.Len(t, q.records(t), maxScrapeItems)
}

func TestCollector_UnchangedPageEnqueuesNothing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article><h2>Story</h2><a href="/s">read</a></article></body></html>`))
	}))
	defer srv.Close()

	q := &fakeQueue{}
	src := news.SourceDescriptor{Name: "example", URL: srv.URL}
	c := New([]news.SourceDescriptor{src}, q, &fakeDetector{changed: false}, &fakeClock{now: time.Now().UTC()}, testConfig(), zap.NewNop())

	c.CollectOnce(context.Background())

	require.Empty(t, q.records(t))
}

func TestCollector_ErrorStatusEnqueuesNothing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := &fakeQueue{}
	src := news.SourceDescriptor{Name: "example", URL: srv.URL, FeedURL: srv.URL + "/rss"}
	c := New([]news.SourceDescriptor{src}, q, &fakeDetector{changed: true}, &fakeClock{now: time.Now().UTC()}, testConfig(), zap.NewNop())

	c.CollectOnce(context.Background())

	require.Empty(t, q.records(t))
}

func TestCollector_IntervalGateSkipsRecentSource(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(rssBody(1)))
	}))
	defer srv.Close()

	q := &fakeQueue{}
	src := news.SourceDescriptor{Name: "example", URL: "https://example.com", FeedURL: srv.URL}
	c := New([]news.SourceDescriptor{src}, q, &fakeDetector{}, &fakeClock{now: time.Now().UTC()}, testConfig(), zap.NewNop())

	c.CollectOnce(context.Background())
	c.CollectOnce(context.Background())

	require.EqualValues(t, 1, hits.Load())
	require.Len(t, q.records(t), 1)
}

func TestCollector_GlobalFetchCapUnderBurst(t *testing.T) {
	t.Parallel()

	var inFlight, highWater atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cur := inFlight.Add(1)
		for {
			hw := highWater.Load()
			if cur <= hw || highWater.CompareAndSwap(hw, cur) {
				break
			}
		}
		// Hold the request open so the burst overlaps.
		time.Sleep(50 * time.Millisecond)
		inFlight.Add(-1)
		_, _ = w.Write([]byte(rssBody(1)))
	}))
	defer srv.Close()

	sources := make([]news.SourceDescriptor, 0, 8)
	for i := 0; i < 8; i++ {
		sources = append(sources, news.SourceDescriptor{
			Name:    fmt.Sprintf("source-%d", i),
			URL:     fmt.Sprintf("https://example.com/%d", i),
			FeedURL: fmt.Sprintf("%s/feed-%d", srv.URL, i),
		})
	}

	q := &fakeQueue{}
	cfg := testConfig()
	cfg.MaxConcurrent = 3
	c := New(sources, q, &fakeDetector{}, &fakeClock{now: time.Now().UTC()}, cfg, zap.NewNop())

	c.CollectOnce(context.Background())

	require.LessOrEqual(t, highWater.Load(), int64(3))
	require.Len(t, q.records(t), 8)
}

func TestCollector_SourceFailureDoesNotAbortCycle(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(rssBody(1)))
	}))
	defer srv.Close()

	q := &fakeQueue{}
	sources := []news.SourceDescriptor{
		{Name: "dead", URL: "http://127.0.0.1:1", FeedURL: "http://127.0.0.1:1/rss"},
		{Name: "alive", URL: "https://example.com", FeedURL: srv.URL},
	}
	cfg := testConfig()
	cfg.RequestTimeout = 500 * time.Millisecond
	c := New(sources, q, &fakeDetector{}, &fakeClock{now: time.Now().UTC()}, cfg, zap.NewNop())

	c.CollectOnce(context.Background())

	recs := q.records(t)
	require.Len(t, recs, 1)
	require.Equal(t, "alive", recs[0].Source)
}

func TestCollector_RunStopsOnStop(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	c := New(nil, &fakeQueue{}, &fakeDetector{}, &fakeClock{now: time.Now().UTC()}, cfg, zap.NewNop())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collection loop did not stop")
	}
}
