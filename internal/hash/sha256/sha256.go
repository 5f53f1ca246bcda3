// Package sha256 provides SHA-256 hashing for content change detection.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Hasher implements news.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex-encoded SHA-256 digest of data.
func (h *Hasher) Hash(data []byte) (string, error) {
	digest := sha256.New()
	if _, err := digest.Write(data); err != nil {
		return "", fmt.Errorf("hash content: %w", err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}
