// Package kv provides the key-value persistence used for jobs, queue state,
// analysis cache entries and cost aggregates.
package kv

import (
	"context"
	"time"
)

// Store is the key-value interface. All persisted state goes through here.
// Implementations must be safe for concurrent use. A ttl of zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Scan returns every live key starting with prefix, in no particular order.
	Scan(ctx context.Context, prefix string) ([]string, error)
	// IncrByFloat adds delta to the counter at key and returns the new value.
	IncrByFloat(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// Push appends value to the list at key, keeping at most maxLen newest items
	// when maxLen > 0.
	Push(ctx context.Context, key string, value []byte, maxLen int, ttl time.Duration) error
	// Range returns the list at key, oldest first.
	Range(ctx context.Context, key string) ([][]byte, error)
	Ping(ctx context.Context) error
	Close() error
}
