package cache

import (
	"context"
	"time"
)

// Cache defines the cache operations used by the judge repositories.
type Cache interface {
	BasicOps

	// Ping checks if the cache server is reachable
	Ping(ctx context.Context) error

	// Close releases the underlying connections
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" with a nil error when the key does not exist
	Get(ctx context.Context, key string) (string, error)

	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// SetNX sets the key only if it does not exist
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)

	Del(ctx context.Context, keys ...string) error

	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns a negative duration for keys without expiry or missing keys
	TTL(ctx context.Context, key string) (time.Duration, error)

	Incr(ctx context.Context, key string) (int64, error)
}
