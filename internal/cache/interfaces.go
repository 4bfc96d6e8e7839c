package cache

import (
	"context"
	"time"
)

// Cache holds short-lived shared state: the catalog snapshot and login
// sessions. Redis lets several API instances share one session set;
// development runs in memory.
type Cache interface {
	// Get returns the value under key or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key holds a live value.
	Exists(ctx context.Context, key string) (bool, error)

	// GetOrSet returns the value under key, or stores and returns the
	// result of fn. A failing fn stores nothing.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error)

	// Count returns how many live keys start with prefix.
	Count(ctx context.Context, prefix string) (int, error)

	// Close releases background resources.
	Close() error
}

// CacheError is a sentinel cache error.
type CacheError string

func (e CacheError) Error() string { return string(e) }

// ErrCacheMiss indicates the key was not found in cache.
const ErrCacheMiss CacheError = "cache miss"
