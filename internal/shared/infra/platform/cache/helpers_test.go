package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, errors.New("redis: connection refused")
}
func (brokenCache) Set(ctx context.Context, key string, val interface{}, ttlSecs int) error {
	return errors.New("redis: connection refused")
}
func (brokenCache) Delete(ctx context.Context, key string) error {
	return errors.New("redis: connection refused")
}
func (brokenCache) DeleteByPattern(ctx context.Context, pattern string) error {
	return errors.New("redis: connection refused")
}

func TestGetOrLoad_MissThenHit(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(time.Minute, 0)
	loads := 0
	load := func(ctx context.Context) (product, error) {
		loads++
		return product{ID: "p-1", Price: 20}, nil
	}

	got, fromCache, err := GetOrLoad(ctx, c, "product:p-1", FixedTTL[product](TTLProduct), load, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, 20.0, got.Price)

	got, fromCache, err = GetOrLoad(ctx, c, "product:p-1", FixedTTL[product](TTLProduct), load, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Equal(t, "p-1", got.ID)
	assert.Equal(t, 1, loads)
}

func TestGetOrLoad_LoadErrorIsNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(time.Minute, 0)
	notFound := errors.New("not found")

	_, _, err := GetOrLoad(ctx, c, "product:p-9", FixedTTL[product](TTLProduct), func(ctx context.Context) (product, error) {
		return product{}, notFound
	}, zap.NewNop())
	assert.ErrorIs(t, err, notFound)

	var p product
	hit, _ := c.Get(ctx, "product:p-9", &p)
	assert.False(t, hit)
}

func TestGetOrLoad_CacheFailureFallsBackToStore(t *testing.T) {
	got, fromCache, err := GetOrLoad(context.Background(), brokenCache{}, "orders:u-1", FixedTTL[[]string](TTLOrders),
		func(ctx context.Context) ([]string, error) { return []string{"o-1"}, nil }, zap.NewNop())

	require.NoError(t, err)
	assert.False(t, fromCache)
	assert.Equal(t, []string{"o-1"}, got)
}

func TestInvalidate_FailureIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	Invalidate(context.Background(), brokenCache{}, log, "cart:u-1", "orders:u-1")
	InvalidatePattern(context.Background(), brokenCache{}, log, "products:*")

	assert.Equal(t, 2, logs.FilterMessage("Cache deletion failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("Cache pattern deletion failed").Len())
}

func TestInvalidate_RemovesKeys(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(time.Minute, 0)
	require.NoError(t, c.Set(ctx, "cart:u-1", []int{1}, TTLCart))

	Invalidate(ctx, c, zap.NewNop(), "cart:u-1")

	var v []int
	hit, _ := c.Get(ctx, "cart:u-1", &v)
	assert.False(t, hit)
}
