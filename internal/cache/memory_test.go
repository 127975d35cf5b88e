package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClient_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClient_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))
	time.Sleep(30 * time.Millisecond)

	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryClient_DeleteByPrefix(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	for _, k := range []string{"t:a:1", "t:a:2", "t:b:1"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), time.Minute))
	}
	require.NoError(t, c.DeleteByPrefix(ctx, "t:a:"))

	assert.Equal(t, 1, c.Len())
	_, err := c.Get(ctx, "t:b:1")
	assert.NoError(t, err)
}

func TestMemoryClient_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "first", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "second", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "third", []byte("3"), time.Hour))

	assert.Equal(t, 2, c.Len())
	_, err := c.Get(ctx, "first")
	assert.ErrorIs(t, err, ErrCacheMiss)

	// Overwriting an existing key never evicts.
	require.NoError(t, c.Set(ctx, "third", []byte("3b"), time.Hour))
	assert.Equal(t, 2, c.Len())
}

func TestMemoryClient_PubSub(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(10)
	defer c.Close()

	msgs, unsubscribe, err := c.Subscribe(ctx, "reload")
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "reload", map[string]string{"tenant": "acme"}))
	require.NoError(t, c.Publish(ctx, "other", "ignored"))

	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"tenant":"acme"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	unsubscribe()
	_, open := <-msgs
	assert.False(t, open)
	unsubscribe()
}

func TestMemoryClient_CloseEndsSubscriptions(t *testing.T) {
	c := NewMemoryClient(10)
	msgs, _, err := c.Subscribe(context.Background(), "reload")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	_, open := <-msgs
	assert.False(t, open)

	_, _, err = c.Subscribe(context.Background(), "reload")
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "a:b:c", CacheKey("a", "b", "c"))
	assert.Equal(t, "t:acme:extract:v1", TenantCacheKey("acme", "extract", "v1"))
}
