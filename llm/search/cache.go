package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/genflow/types"
)

// ResultCache is the subset of the Redis cache manager used for search results.
type ResultCache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CacheMetrics observes cache lookups.
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// Cached memoizes successful searches. Cache failures never fail a search.
type Cached struct {
	next    Provider
	cache   ResultCache
	ttl     time.Duration
	metrics CacheMetrics
	logger  *zap.Logger
}

// NewCached wraps next with a result cache.
func NewCached(next Provider, cache ResultCache, ttl time.Duration, logger *zap.Logger) *Cached {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "search_cache")),
	}
}

// WithMetrics attaches a hit/miss observer.
func (c *Cached) WithMetrics(m CacheMetrics) *Cached {
	c.metrics = m
	return c
}

// Name implements Provider.
func (c *Cached) Name() string { return c.next.Name() }

// Search implements Provider.
func (c *Cached) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	key := cacheKey(c.next.Name(), query, opts)

	var cached []types.SearchResult
	if err := c.cache.GetJSON(ctx, key, &cached); err == nil {
		if c.metrics != nil {
			c.metrics.RecordCacheHit("search")
		}
		return Limit(cached, opts.MaxResults), nil
	}
	if c.metrics != nil {
		c.metrics.RecordCacheMiss("search")
	}

	results, err := c.next.Search(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, key, results, c.ttl); err != nil {
		c.logger.Warn("failed to cache search results", zap.Error(err))
	}
	return results, nil
}

func cacheKey(provider, query string, opts Options) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", provider, opts.MaxResults, normalized)))
	return "search:" + hex.EncodeToString(sum[:16])
}
