package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/catalog-backend/internal/config"
)

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), time.Minute))

	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, c.Delete(ctx, "a", "b"))
	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	now = now.Add(59 * time.Second)
	_, err := c.Get(ctx, "k")
	assert.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	c.removeExpired()
	assert.Zero(t, c.Size())
}

func TestMemoryCache_StoredValueIsCopied(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Minute))
	buf[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestJSONHelpers(t *testing.T) {
	c := NewMemoryCache(0)
	defer c.Close()
	ctx := context.Background()

	type ranks struct {
		Global int            `json:"global"`
		ByCat  map[string]int `json:"by_category"`
	}

	require.NoError(t, SetJSON(ctx, c, "priority:ridgeline", ranks{Global: 1, ByCat: map[string]int{"Optics": 2}}, time.Minute))

	var got ranks
	require.NoError(t, GetJSON(ctx, c, "priority:ridgeline", &got))
	assert.Equal(t, 1, got.Global)
	assert.Equal(t, 2, got.ByCat["Optics"])

	assert.ErrorIs(t, GetJSON(ctx, c, "priority:none", &got), ErrCacheMiss)
}

// Runs against a live server only when REDIS_HOST is set.
func TestRedisCache(t *testing.T) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("REDIS_HOST not set")
	}

	c, err := NewRedisCache(config.RedisConfig{Host: host, Port: "6379"}, "catalog-test:")
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestNewSelectsBackend(t *testing.T) {
	store, err := New(&config.Config{Cache: config.CacheConfig{Type: "memory"}})
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &MemoryCache{}, store)

	_, err = New(&config.Config{Cache: config.CacheConfig{Type: "memcached"}})
	assert.Error(t, err)
}
