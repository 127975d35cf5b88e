// Package cache provides the extraction cache and the reload broadcast used
// by the filter engine.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// PubSub broadcasts small messages between service instances.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	// Subscribe returns a channel of raw payloads and a function that ends the
	// subscription. The payload channel is closed after unsubscribe.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// CacheKey generates a cache key from components.
func CacheKey(parts ...string) string {
	return strings.Join(parts, ":")
}

// TenantCacheKey generates a tenant-scoped cache key.
func TenantCacheKey(tenantID string, parts ...string) string {
	return CacheKey(append([]string{"t", tenantID}, parts...)...)
}
