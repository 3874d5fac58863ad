// Package cachemanager provides a generic TTL cache used for loaded schema
// documents and compiled transform scripts.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a generic key/value cache with per-entry TTL.
type CacheManager[K ~string, V any] interface {
	// Get retrieves an item by key.
	Get(ctx context.Context, key string) (V, bool)
	// GetWithRefresh retrieves an item and, on a hit, extends its TTL.
	GetWithRefresh(ctx context.Context, key string, ttl time.Duration) (V, bool)
	// Set stores an item with the given TTL.
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	// Delete removes an item by key.
	Delete(ctx context.Context, key string)
	// Flush removes all items.
	Flush(ctx context.Context)
}
