package collector

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/newsscope/newswire/internal/news"
)

// extractArticles pulls candidate articles out of a changed listing page
// using the source's selectors, newest-first up to maxScrapeItems.
// Containers missing a title or link are skipped.
func (c *Collector) extractArticles(html []byte, src news.SourceDescriptor) ([]news.ArticleRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("parse source url: %w", err)
	}

	containerSel := src.Selectors.ArticleContainer
	if containerSel == "" {
		containerSel = "article"
	}
	titleSel := src.Selectors.Title
	if titleSel == "" {
		titleSel = "h1, h2, .title"
	}
	dateSel := src.Selectors.PublishDate
	if dateSel == "" {
		dateSel = "time, .date"
	}

	now := c.clock.Now()
	records := make([]news.ArticleRecord, 0, maxScrapeItems)
	doc.Find(containerSel).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Find(titleSel).First().Text())
		link := containerLink(sel, base)
		if title == "" || link == "" {
			return true
		}

		records = append(records, news.ArticleRecord{
			Title:       title,
			URL:         link,
			Source:      src.Name,
			Language:    src.Language,
			Category:    src.Category,
			Region:      src.Region,
			PublishedAt: containerDate(sel, dateSel, now),
			CollectedAt: now,
			SourceType:  news.SourceTypeScrape,
		})
		return len(records) < maxScrapeItems
	})
	return records, nil
}

// containerLink resolves the first anchor in the container against the
// source page URL.
func containerLink(sel *goquery.Selection, base *url.URL) string {
	href, ok := sel.Find("a[href]").First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// containerDate tries the datetime attribute first, then the element text,
// falling back to the collection time.
func containerDate(sel *goquery.Selection, dateSel string, fallback time.Time) time.Time {
	elem := sel.Find(dateSel).First()
	candidates := []string{
		strings.TrimSpace(elem.AttrOr("datetime", "")),
		strings.TrimSpace(elem.Text()),
	}
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		for _, layout := range layouts {
			if t, err := time.Parse(layout, cand); err == nil {
				return t.UTC()
			}
		}
	}
	return fallback
}
