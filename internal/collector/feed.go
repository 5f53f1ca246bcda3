package collector

import (
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/newsscope/newswire/internal/news"
)

// parseFeed normalizes the newest feed entries into article records.
// Entries without a usable title or link are skipped; a parse failure of
// the whole document is an error for the caller to log.
func (c *Collector) parseFeed(body []byte, src news.SourceDescriptor) ([]news.ArticleRecord, error) {
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	now := c.clock.Now()
	records := make([]news.ArticleRecord, 0, maxFeedEntries)
	for _, entry := range feed.Items {
		if len(records) >= maxFeedEntries {
			break
		}
		link := entryLink(entry)
		title := strings.TrimSpace(entry.Title)
		if title == "" || link == "" {
			continue
		}

		publishedAt := now
		if entry.PublishedParsed != nil {
			publishedAt = entry.PublishedParsed.UTC()
		}

		records = append(records, news.ArticleRecord{
			Title:       title,
			URL:         link,
			Source:      src.Name,
			Language:    src.Language,
			Category:    src.Category,
			Region:      src.Region,
			PublishedAt: publishedAt,
			CollectedAt: now,
			Content:     entry.Description,
			SourceType:  news.SourceTypeFeed,
		})
	}
	return records, nil
}

// entryLink returns the best available URL from a feed entry, falling back
// to the GUID when it looks like an HTTP URL.
func entryLink(entry *gofeed.Item) string {
	if entry.Link != "" {
		return entry.Link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}
