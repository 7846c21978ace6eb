package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/genflow/internal/cache"
	"github.com/BaSui01/genflow/types"
)

type countingProvider struct {
	calls    int
	searchFn func(query string) ([]types.SearchResult, error)
}

func (c *countingProvider) Name() string { return "counting" }

func (c *countingProvider) Search(_ context.Context, query string, _ Options) ([]types.SearchResult, error) {
	c.calls++
	return c.searchFn(query)
}

func TestRateLimited_WaitsAndPropagatesCancel(t *testing.T) {
	next := &countingProvider{searchFn: func(string) ([]types.SearchResult, error) { return nil, nil }}
	rl := NewRateLimited(next, 0.001, 1)
	assert.Equal(t, "counting", rl.Name())

	_, err := rl.Search(context.Background(), "q", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = rl.Search(ctx, "q", Options{})
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimit))
	assert.Equal(t, 1, next.calls)
}

type cacheCounter struct{ hits, misses int }

func (c *cacheCounter) RecordCacheHit(string)  { c.hits++ }
func (c *cacheCounter) RecordCacheMiss(string) { c.misses++ }

func newTestCache(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, cache.New(client, cache.WithPrefix("t:"))
}

func TestCached_HitsCacheOnSecondCall(t *testing.T) {
	_, mgr := newTestCache(t)
	next := &countingProvider{searchFn: func(q string) ([]types.SearchResult, error) {
		return []types.SearchResult{{Title: q, URL: "https://x.test"}}, nil
	}}
	m := &cacheCounter{}
	c := NewCached(next, mgr, time.Minute, nil).WithMetrics(m)

	first, err := c.Search(context.Background(), "Bitcoin  Price", Options{MaxResults: 3})
	require.NoError(t, err)
	second, err := c.Search(context.Background(), "bitcoin price", Options{MaxResults: 3})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
}

func TestCached_DoesNotCacheFailures(t *testing.T) {
	_, mgr := newTestCache(t)
	next := &countingProvider{searchFn: func(string) ([]types.SearchResult, error) {
		return nil, errors.New("down")
	}}
	c := NewCached(next, mgr, time.Minute, nil)

	_, err := c.Search(context.Background(), "q", Options{})
	assert.Error(t, err)
	_, err = c.Search(context.Background(), "q", Options{})
	assert.Error(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCached_SurvivesCacheOutage(t *testing.T) {
	mr, mgr := newTestCache(t)
	mr.Close()

	next := &countingProvider{searchFn: func(string) ([]types.SearchResult, error) {
		return []types.SearchResult{{URL: "https://x.test"}}, nil
	}}
	results, err := NewCached(next, mgr, time.Minute, nil).Search(context.Background(), "q", Options{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
