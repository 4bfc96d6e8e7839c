package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	value := []byte("v")
	require.NoError(t, c.Set(ctx, "k", value, time.Minute))
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got, "stored value is a copy")

	ok, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Delete(ctx, "k"))
	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "session:a", []byte("1"), time.Hour))
	require.NoError(t, c.Set(ctx, "session:b", []byte("2"), 2*time.Hour))
	require.NoError(t, c.Set(ctx, "catalog", []byte("3"), 2*time.Hour))

	n, err := c.Count(ctx, "session:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	now = now.Add(90 * time.Minute)
	_, err = c.Get(ctx, "session:a")
	assert.ErrorIs(t, err, ErrCacheMiss)
	n, _ = c.Count(ctx, "session:")
	assert.Equal(t, 1, n)
	n, _ = c.Count(ctx, "")
	assert.Equal(t, 2, n)

	c.sweep()
	c.mu.RLock()
	assert.Len(t, c.entries, 2)
	c.mu.RUnlock()
}

func TestMemoryCacheGetOrSet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	calls := 0
	fn := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrSet(ctx, "k", time.Minute, fn)
		require.NoError(t, err)
		assert.Equal(t, []byte("computed"), got)
	}
	assert.Equal(t, 1, calls)

	_, err := c.GetOrSet(ctx, "other", time.Minute, func() ([]byte, error) {
		return nil, errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	ok, _ := c.Exists(ctx, "other")
	assert.False(t, ok)
}

func TestMemoryCacheCloseTwice(t *testing.T) {
	c := NewMemoryCacheWithInterval(time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
