// Package detect implements content-hash change detection for polled pages.
package detect

import (
	"context"
	"fmt"
	"time"

	"github.com/newsscope/newswire/internal/news"
)

const hashKeyPrefix = "page_hash:"

// DefaultRetention bounds hash-store growth; entries older than this are
// treated as never seen.
const DefaultRetention = 7 * 24 * time.Hour

// HashStore persists one content hash per URL key with an expiry. The set
// operation must be atomic: concurrent writers to the same key resolve to
// last-writer-wins without the detector adding locks.
type HashStore interface {
	// Get returns the stored hash, or "" if absent or expired.
	Get(ctx context.Context, key string) (string, error)
	// SetWithTTL stores the hash, replacing any previous value.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
}

// Detector decides whether fetched content differs from the last version
// seen for a URL.
type Detector struct {
	store     HashStore
	hasher    news.Hasher
	retention time.Duration
}

// New constructs a Detector. A non-positive retention falls back to
// DefaultRetention.
func New(store HashStore, hasher news.Hasher, retention time.Duration) *Detector {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Detector{
		store:     store,
		hasher:    hasher,
		retention: retention,
	}
}

// HasChanged hashes the content and compares it against the stored hash for
// the URL. On a difference (or first sight) the stored hash is overwritten
// and true is returned; identical content returns false without mutation.
func (d *Detector) HasChanged(ctx context.Context, url string, content []byte) (bool, error) {
	newHash, err := d.hasher.Hash(content)
	if err != nil {
		return false, fmt.Errorf("hash content: %w", err)
	}

	key, err := d.key(url)
	if err != nil {
		return false, err
	}

	oldHash, err := d.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get page hash: %w", err)
	}
	if oldHash == newHash {
		return false, nil
	}

	if err := d.store.SetWithTTL(ctx, key, newHash, d.retention); err != nil {
		return false, fmt.Errorf("set page hash: %w", err)
	}
	return true, nil
}

// key hashes the URL itself so arbitrary URLs make safe store keys.
func (d *Detector) key(url string) (string, error) {
	urlHash, err := d.hasher.Hash([]byte(url))
	if err != nil {
		return "", fmt.Errorf("hash url: %w", err)
	}
	return hashKeyPrefix + urlHash, nil
}
