package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aiaxstock/internal/cache"
	"aiaxstock/internal/model"
)

func TestStaticCatalog(t *testing.T) {
	c := StaticCatalog([]string{"netflix:Netflix Premium", " canva ", ""})
	assert.True(t, c.Fallback)
	assert.Equal(t, []model.Product{
		{Key: "netflix", Label: "Netflix Premium"},
		{Key: "canva", Label: "canva"},
	}, c.Products)
	assert.Equal(t, DefaultDurations, c.Durations)
}

func TestCatalogLoadCachesStoreResult(t *testing.T) {
	store := newMemStore()
	store.products = []model.Product{{Key: "netflix", Label: "Netflix"}}
	c := cache.NewMemoryCache()
	defer c.Close()
	svc := NewCatalogService(store, c, StaticCatalog(nil), time.Second, time.Minute)
	ctx := context.Background()

	got := svc.Load(ctx)
	assert.False(t, got.Fallback)
	assert.Equal(t, store.products, got.Products)
	assert.Equal(t, DefaultDurations, got.Durations, "empty durations table uses defaults")

	got = svc.Load(ctx)
	assert.Equal(t, "netflix", got.Products[0].Key)
	assert.Equal(t, 1, store.catalogCalls)

	require.NoError(t, svc.Invalidate(ctx))
	svc.Load(ctx)
	assert.Equal(t, 2, store.catalogCalls)
}

func TestCatalogFallbackNotCached(t *testing.T) {
	store := newMemStore()
	store.catalogErr = errStoreDown
	c := cache.NewMemoryCache()
	defer c.Close()
	svc := NewCatalogService(store, c, StaticCatalog([]string{"spotify:Spotify"}), time.Second, time.Minute)
	ctx := context.Background()

	got := svc.Load(ctx)
	assert.True(t, got.Fallback)
	assert.Equal(t, "spotify", got.Products[0].Key)

	store.catalogErr = nil
	store.products = []model.Product{{Key: "netflix", Label: "Netflix"}}
	got = svc.Load(ctx)
	assert.False(t, got.Fallback)
	assert.Equal(t, "netflix", got.Products[0].Key)
}

func TestCatalogTimeout(t *testing.T) {
	store := newMemStore()
	store.products = []model.Product{{Key: "netflix", Label: "Netflix"}}
	store.catalogDelay = time.Second
	c := cache.NewMemoryCache()
	defer c.Close()
	svc := NewCatalogService(store, c, StaticCatalog(nil), 20*time.Millisecond, time.Minute)

	start := time.Now()
	got := svc.Load(context.Background())
	assert.True(t, got.Fallback)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
