// Package cache abstracts the key-value side cache used by the note service.
//
// Implementations are best-effort: callers treat every error as a miss or
// no-op and never fail a request because of the cache.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist or has expired.
var ErrCacheMiss = errors.New("cache: miss")

// Cache is a key-value capability injected into the service layer.
// All operations are safe for concurrent use.
type Cache interface {
	// Get retrieves the value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores val under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
