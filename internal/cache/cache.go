// Package cache defines the pluggable string cache used for remote
// tool catalogs and provides an in-memory LRU implementation.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheClosed indicates an operation on a closed cache backend.
var ErrCacheClosed = errors.New("cache closed")

// Cache is the minimal contract catalog caching needs. Implementations
// must be safe for concurrent use. A backend error is reported, not
// swallowed; callers decide whether a failed read is fatal.
type Cache interface {
	// Get returns the stored value and whether a live entry exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl. A non-positive ttl means no
	// expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes the entry if present.
	Delete(ctx context.Context, key string) error
	// IsExpired reports whether key is absent or past its TTL.
	IsExpired(ctx context.Context, key string) (bool, error)
}
