package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/genflow/internal/tlsutil"
	"github.com/BaSui01/genflow/llm/providers"
	"github.com/BaSui01/genflow/types"
)

// TavilyConfig configures the Tavily search client.
type TavilyConfig struct {
	APIKey      string
	BaseURL     string
	SearchDepth string // "basic" or "advanced"
	Timeout     time.Duration
}

// Tavily is a Provider backed by the Tavily search API.
type Tavily struct {
	cfg    TavilyConfig
	client *http.Client
	logger *zap.Logger
}

// NewTavily creates a Tavily client.
func NewTavily(cfg TavilyConfig, logger *zap.Logger) *Tavily {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if cfg.SearchDepth == "" {
		cfg.SearchDepth = "basic"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tavily{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "search"), zap.String("provider", "tavily")),
	}
}

// Name implements Provider.
func (t *Tavily) Name() string { return "tavily" }

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	MaxResults  int    `json:"max_results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

// Search implements Provider.
func (t *Tavily) Search(ctx context.Context, query string, opts Options) ([]types.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "empty search query").WithProvider(t.Name())
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	var body tavilyResponse
	err := providers.DoJSON(ctx, t.client, t.Name(), providers.JSONRequest{
		Method: http.MethodPost,
		URL:    strings.TrimRight(t.cfg.BaseURL, "/") + "/search",
		Header: http.Header{"Authorization": {"Bearer " + t.cfg.APIKey}},
		Body: tavilyRequest{
			APIKey:      t.cfg.APIKey,
			Query:       query,
			SearchDepth: t.cfg.SearchDepth,
			MaxResults:  maxResults,
		},
	}, &body)
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(body.Results))
	for _, r := range body.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, types.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
			Source:  hostOf(r.URL),
		})
	}
	t.logger.Debug("search completed", zap.Int("results", len(results)))
	return Limit(results, maxResults), nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "tavily"
	}
	return strings.TrimPrefix(u.Host, "www.")
}
