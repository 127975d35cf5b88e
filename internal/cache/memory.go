package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryClient implements an in-process cache and pub/sub for development
// and single-instance deployments.
type MemoryClient struct {
	mu      sync.RWMutex
	data    map[string]cacheEntry
	maxSize int

	subMu       sync.Mutex
	subscribers map[string]map[int]chan []byte
	nextSubID   int

	stop      chan struct{}
	closeOnce sync.Once
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryClient creates a new in-memory cache client.
func NewMemoryClient(maxSize int) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 10000
	}

	c := &MemoryClient{
		data:        make(map[string]cacheEntry),
		maxSize:     maxSize,
		subscribers: make(map[string]map[int]chan []byte),
		stop:        make(chan struct{}),
	}

	go c.cleanup(time.Minute)

	return c
}

// Get retrieves a value from cache.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[key]
	if !ok || entry.expired(time.Now()) {
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value in cache. A non-positive ttl keeps the entry until it
// is evicted.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.data[key]; !exists && len(c.data) >= c.maxSize {
		c.evictOldest()
	}

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.data[key] = entry
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// DeleteByPrefix removes all keys with the given prefix.
func (c *MemoryClient) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryClient) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// Close stops the cleanup loop and ends all subscriptions.
func (c *MemoryClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)

		c.subMu.Lock()
		defer c.subMu.Unlock()
		for channel, subs := range c.subscribers {
			for id, ch := range subs {
				close(ch)
				delete(subs, id)
			}
			delete(c.subscribers, channel)
		}
	})
	return nil
}

// Publish delivers a JSON-encoded message to every current subscriber of
// channel. Slow subscribers with a full buffer miss the message.
func (c *MemoryClient) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subscribers[channel] {
		select {
		case ch <- data:
		default:
		}
	}
	return nil
}

// Subscribe registers an in-process subscriber on channel.
func (c *MemoryClient) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	select {
	case <-c.stop:
		return nil, nil, fmt.Errorf("memory cache closed")
	default:
	}

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan []byte, 100)
	if c.subscribers[channel] == nil {
		c.subscribers[channel] = make(map[int]chan []byte)
	}
	c.subscribers[channel][id] = ch

	unsubscribe := func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		if sub, ok := c.subscribers[channel][id]; ok {
			close(sub)
			delete(c.subscribers[channel], id)
		}
	}
	return ch, unsubscribe, nil
}

func (e cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// evictOldest removes the entry with the earliest expiration. Entries without
// an expiry are evicted only when nothing else is left.
func (c *MemoryClient) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.data {
		if entry.expiresAt.IsZero() {
			if oldestKey == "" {
				oldestKey = key
			}
			continue
		}
		if oldestTime.IsZero() || entry.expiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.expiresAt
		}
	}

	if oldestKey != "" {
		delete(c.data, oldestKey)
	}
}

// cleanup periodically removes expired entries.
func (c *MemoryClient) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, entry := range c.data {
				if entry.expired(now) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

var (
	_ Client = (*MemoryClient)(nil)
	_ PubSub = (*MemoryClient)(nil)
	_ Client = (*RedisClient)(nil)
	_ PubSub = (*RedisClient)(nil)
)
