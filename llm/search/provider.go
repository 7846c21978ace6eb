package search

import (
	"context"

	"github.com/BaSui01/genflow/types"
)

// DefaultMaxResults is used when Options.MaxResults is not positive.
const DefaultMaxResults = 5

// Options configures a single search call.
type Options struct {
	MaxResults int `json:"max_results"`
}

// Provider is the search adapter contract. Results are ordered by relevance.
// Failures are returned as *types.Error carrying the provider name.
type Provider interface {
	Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error)
	Name() string
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, query string, opts Options) ([]types.SearchResult, error)

// Search implements Provider.
func (f ProviderFunc) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	return f(ctx, query, opts)
}

// Name implements Provider.
func (f ProviderFunc) Name() string { return "func" }

// Limit caps results at n, never returning nil.
func Limit(results []types.SearchResult, n int) []types.SearchResult {
	if n <= 0 {
		n = DefaultMaxResults
	}
	if len(results) > n {
		results = results[:n]
	}
	out := make([]types.SearchResult, len(results))
	copy(out, results)
	return out
}
