// Package memory provides an in-memory article store for broker-less runs
// and tests.
package memory

import (
	"context"
	"sync"

	"github.com/newsscope/newswire/internal/news"
)

// Store keeps records in a map keyed by URL.
type Store struct {
	mu      sync.Mutex
	records map[string]news.ArticleRecord
}

// New constructs an empty store.
func New() *Store {
	return &Store{records: make(map[string]news.ArticleRecord)}
}

// InsertOrIgnore stores the record unless its URL is already present.
func (s *Store) InsertOrIgnore(_ context.Context, rec news.ArticleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.URL]; ok {
		return nil
	}
	s.records[rec.URL] = rec
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns the record for a URL, if stored.
func (s *Store) Get(url string) (news.ArticleRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[url]
	return rec, ok
}
