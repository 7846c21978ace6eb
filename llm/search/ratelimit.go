package search

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/BaSui01/genflow/types"
)

// RateLimited throttles calls to an underlying provider with a token bucket.
// Callers wait for a token; a canceled context surfaces as a rate limit error.
type RateLimited struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps next with rps requests per second and the given burst.
func NewRateLimited(next Provider, rps float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Name implements Provider.
func (r *RateLimited) Name() string { return r.next.Name() }

// Search implements Provider.
func (r *RateLimited) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, types.NewError(types.ErrRateLimit, "search rate limit wait aborted").
			WithCause(err).
			WithProvider(r.next.Name())
	}
	return r.next.Search(ctx, query, opts)
}
