package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/genflow/types"
)

func TestTavily_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bitcoin price", req.Query)
		assert.Equal(t, 2, req.MaxResults)
		assert.Equal(t, "key", req.APIKey)

		_ = json.NewEncoder(w).Encode(tavilyResponse{Results: []tavilyResult{
			{Title: "A", URL: "https://www.example.com/a", Content: "alpha"},
			{Title: "no url"},
			{Title: "B", URL: "https://news.test/b", Content: "beta"},
			{Title: "C", URL: "https://c.test", Content: "gamma"},
		}})
	}))
	defer server.Close()

	tv := NewTavily(TavilyConfig{APIKey: "key", BaseURL: server.URL}, nil)
	results, err := tv.Search(context.Background(), "bitcoin price", Options{MaxResults: 2})

	require.NoError(t, err)
	assert.Equal(t, []types.SearchResult{
		{Title: "A", URL: "https://www.example.com/a", Snippet: "alpha", Source: "example.com"},
		{Title: "B", URL: "https://news.test/b", Snippet: "beta", Source: "news.test"},
	}, results)
}

func TestTavily_Errors(t *testing.T) {
	t.Run("http error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"invalid api key"}`))
		}))
		defer server.Close()

		_, err := NewTavily(TavilyConfig{BaseURL: server.URL}, nil).Search(context.Background(), "q", Options{})
		typed, ok := types.AsError(err)
		require.True(t, ok)
		assert.Equal(t, types.ErrAuthentication, typed.Code)
		assert.Equal(t, "tavily", typed.Provider)
		assert.Equal(t, "invalid api key", typed.Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		_, err := NewTavily(TavilyConfig{BaseURL: server.URL}, nil).Search(context.Background(), "q", Options{})
		assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := NewTavily(TavilyConfig{}, nil).Search(context.Background(), "  ", Options{})
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
	})
}

func TestLimit(t *testing.T) {
	assert.NotNil(t, Limit(nil, 3))
	assert.Empty(t, Limit(nil, 3))

	in := make([]types.SearchResult, 8)
	assert.Len(t, Limit(in, 0), DefaultMaxResults)
	assert.Len(t, Limit(in, 3), 3)
	assert.Len(t, Limit(in, 20), 8)
}
