package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/fieldservice-api/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	items   map[string][]byte
	getErr  error
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

func TestCacheServiceRemember(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(newMemoryCache(), metrics, time.Minute, zap.NewNop(), true)
	loads := 0
	load := func(dest *map[string]int) func(context.Context) error {
		return func(context.Context) error {
			loads++
			*dest = map[string]int{"value": 7}
			return nil
		}
	}

	var first map[string]int
	hit, err := svc.Remember(context.Background(), "k", &first, load(&first))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 7, first["value"])

	var second map[string]int
	hit, err = svc.Remember(context.Background(), "k", &second, load(&second))
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 7, second["value"])
	assert.Equal(t, 1, loads)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cacheLookups.WithLabelValues("miss")))
}

func TestCacheServiceDegradesOnBackendError(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = errors.New("connection refused")
	svc := NewCacheService(cache, nil, time.Minute, zap.NewNop(), true)

	var dest string
	hit, err := svc.Remember(context.Background(), "k", &dest, func(context.Context) error {
		dest = "fresh"
		return nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", dest)
}

func TestCacheServiceLoadErrorIsNotCached(t *testing.T) {
	cache := newMemoryCache()
	svc := NewCacheService(cache, nil, time.Minute, zap.NewNop(), true)

	var dest string
	_, err := svc.Remember(context.Background(), "k", &dest, func(context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Empty(t, cache.items)
}

func TestCacheServiceDisabledAlwaysLoads(t *testing.T) {
	cache := newMemoryCache()
	svc := NewCacheService(cache, nil, time.Minute, zap.NewNop(), false)

	var dest string
	for i := 0; i < 2; i++ {
		hit, err := svc.Remember(context.Background(), "k", &dest, func(context.Context) error {
			dest = "fresh"
			return nil
		})
		require.NoError(t, err)
		assert.False(t, hit)
	}
	assert.Empty(t, cache.items)

	var nilSvc *CacheService
	assert.NotPanics(t, func() { nilSvc.Invalidate(context.Background(), "report:*") })
}
