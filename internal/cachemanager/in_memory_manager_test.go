package cachemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewInMemoryCacheManager(t *testing.T) {
	require.NotPanics(t, func() {
		NewInMemoryCacheManager[string, string]("test", DefaultExpiration, DefaultCleanupInterval)
	})
}

type compiledArtifact struct {
	Hash string
	Body string
}

func TestInMemoryCacheManager_GetExistingValue_StructType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, compiledArtifact]("scripts", DefaultExpiration, DefaultCleanupInterval)
	artifact := compiledArtifact{Hash: "ab12", Body: "input.city"}
	cache.Set(context.Background(), "script:ab12", artifact, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "script:ab12")
	require.True(t, ok)
	require.Equal(t, artifact, got)
}

func TestInMemoryCacheManager_GetExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "schemas/weather.json", `{"type":"object"}`, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "schemas/weather.json")
	require.True(t, ok)
	require.Equal(t, `{"type":"object"}`, got)
}

func TestInMemoryCacheManager_GetWithNoExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.Get(context.Background(), "schemas/missing.json")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithExistingInvalidValueType(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)

	cache.cache.Set("schemas/weather.json", 123, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "schemas/weather.json")
	require.False(t, ok)
	require.Empty(t, got)
}

func TestInMemoryCacheManager_GetWithRefresh_WithNoExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)

	got, ok := cache.GetWithRefresh(context.Background(), "schemas/weather.json", time.Minute*60)
	require.False(t, ok)
	require.Equal(t, "", got)
}

func TestInMemoryCacheManager_GetWithRefresh_WithExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "schemas/weather.json", `{}`, DefaultExpiration)

	got, ok := cache.GetWithRefresh(context.Background(), "schemas/weather.json", time.Minute*60)
	require.True(t, ok)
	require.Equal(t, `{}`, got)
}

func TestInMemoryCacheManager_DeleteExistingValue(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "schemas/weather.json", `{}`, DefaultExpiration)

	got, ok := cache.Get(context.Background(), "schemas/weather.json")
	require.True(t, ok)
	require.Equal(t, `{}`, got)

	cache.Delete(context.Background(), "schemas/weather.json")

	got, ok = cache.Get(context.Background(), "schemas/weather.json")
	require.False(t, ok)
	require.Equal(t, "", got)
}

func TestInMemoryCacheManager_Flush(t *testing.T) {
	cache := NewInMemoryCacheManager[string, string]("schemas", DefaultExpiration, DefaultCleanupInterval)
	cache.Set(context.Background(), "a", "1", DefaultExpiration)
	cache.Set(context.Background(), "b", "2", DefaultExpiration)

	cache.Flush(context.Background())

	_, ok := cache.Get(context.Background(), "a")
	require.False(t, ok)
	_, ok = cache.Get(context.Background(), "b")
	require.False(t, ok)
}
