package workflow

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/genflow/llm/tokenizer"
	"github.com/BaSui01/genflow/types"
)

func estimator() *tokenizer.Counter {
	return tokenizer.NewCounterFrom(tokenizer.NewEstimatorTokenizer("", 0), nil)
}

func TestPromptBuilder_NoResults(t *testing.T) {
	b := NewPromptBuilder("", nil, 0)
	s := NewInitialState("s1", "Write a haiku about rain")

	msgs := b.Build(s)
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, types.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Write a haiku about rain")
	assert.NotContains(t, msgs[1].Content, "Sources:")
}

func TestPromptBuilder_EmptyPromptAsksForClarification(t *testing.T) {
	b := NewPromptBuilder("system", nil, 0)
	msgs := b.Build(NewInitialState("s1", "  "))
	assert.Equal(t, "system", msgs[0].Content)
	assert.Equal(t, clarificationInstruction, msgs[1].Content)
}

func TestPromptBuilder_NumberedCitations(t *testing.T) {
	b := NewPromptBuilder("", nil, 0)
	s := NewInitialState("s1", "current BTC price")
	s.SearchResults = sampleResults(2)

	user := b.Build(s)[1].Content
	assert.Contains(t, user, "[1] Result 1\nURL: https://example.com/1\nsnippet number 1")
	assert.Contains(t, user, "[2] Result 2\nURL: https://example.com/2\nsnippet number 2")
	assert.Less(t, strings.Index(user, "[1]"), strings.Index(user, "[2]"))
}

func TestPromptBuilder_TruncatesSnippetsNotURLs(t *testing.T) {
	b := NewPromptBuilder("", estimator(), 40)
	s := NewInitialState("s1", "news")
	long := strings.Repeat("word ", 400)
	s.SearchResults = []types.SearchResult{
		{Title: "A", URL: "https://a.test/" + strings.Repeat("x", 120), Snippet: long},
		{Title: "B", URL: "https://b.test/path", Snippet: long},
	}

	user := b.Build(s)[1].Content
	for _, r := range s.SearchResults {
		assert.Contains(t, user, r.URL)
	}
	assert.NotContains(t, user, long)
}

func TestTruncateTokens(t *testing.T) {
	c := estimator()

	assert.Equal(t, "", truncateTokens(c, "", 10))
	assert.Equal(t, "", truncateTokens(c, "abc", 0))
	assert.Equal(t, "short", truncateTokens(c, "short", 10))

	text := strings.Repeat("abcd", 100)
	got := truncateTokens(c, text, 10)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, c.CountTokens(got), 10)
	assert.True(t, strings.HasPrefix(text, strings.TrimSuffix(got, "…")))
}

func TestProperty_CitationsContainEveryURL(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every search result url appears in the generation prompt", prop.ForAll(
		func(paths []string, snippet string, budget int) bool {
			if len(paths) == 0 {
				return true
			}
			results := make([]types.SearchResult, len(paths))
			for i, p := range paths {
				results[i] = types.SearchResult{
					Title:   p,
					URL:     "https://example.com/" + p,
					Snippet: strings.Repeat(snippet+" ", 50),
				}
			}
			s := NewInitialState("s1", "latest news")
			s.SearchResults = results

			user := NewPromptBuilder("", nil, budget).Build(s)[1].Content
			for _, r := range results {
				if !strings.Contains(user, r.URL) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.AlphaString(),
		gen.IntRange(0, 500),
	))

	properties.TestingRun(t)
}
