package cachemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadThroughCache_LoadsOnMiss(t *testing.T) {
	backing := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)

	loads := 0
	loader := func(ctx context.Context, path string) (string, error) {
		loads++
		return "schema-for-" + path, nil
	}

	cache := NewReadThroughCache[string, string, string](backing, loader, false)

	got, err := cache.Get(context.Background(), "weather.json", "weather.json", DefaultExpiration)
	require.NoError(t, err)
	require.Equal(t, "schema-for-weather.json", got)
	require.Equal(t, 1, loads)

	// Second read is served from cache
	got, err = cache.Get(context.Background(), "weather.json", "weather.json", DefaultExpiration)
	require.NoError(t, err)
	require.Equal(t, "schema-for-weather.json", got)
	require.Equal(t, 1, loads)
}

func TestReadThroughCache_LoaderErrorNotCached(t *testing.T) {
	backing := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)

	loads := 0
	loader := func(ctx context.Context, path string) (string, error) {
		loads++
		return "", errors.New("file not found")
	}

	cache := NewReadThroughCache[string, string, string](backing, loader, false)

	_, err := cache.Get(context.Background(), "missing.json", "missing.json", DefaultExpiration)
	require.Error(t, err)

	_, err = cache.Get(context.Background(), "missing.json", "missing.json", DefaultExpiration)
	require.Error(t, err)
	require.Equal(t, 2, loads, "errors must not be cached")
}

func TestReadThroughCache_Invalidate(t *testing.T) {
	backing := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)

	loads := 0
	loader := func(ctx context.Context, path string) (string, error) {
		loads++
		return path, nil
	}

	cache := NewReadThroughCache[string, string, string](backing, loader, false)

	_, err := cache.Get(context.Background(), "weather.json", "weather.json", DefaultExpiration)
	require.NoError(t, err)

	cache.Invalidate(context.Background(), "weather.json")

	_, err = cache.Get(context.Background(), "weather.json", "weather.json", DefaultExpiration)
	require.NoError(t, err)
	require.Equal(t, 2, loads)
}

func TestReadThroughCache_SkipCache(t *testing.T) {
	backing := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)

	loads := 0
	loader := func(ctx context.Context, path string) (string, error) {
		loads++
		return path, nil
	}

	cache := NewReadThroughCache[string, string, string](backing, loader, true)

	for i := 0; i < 3; i++ {
		_, err := cache.Get(context.Background(), "weather.json", "weather.json", DefaultExpiration)
		require.NoError(t, err)
	}
	require.Equal(t, 3, loads)
}
