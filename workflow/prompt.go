package workflow

import (
	"fmt"
	"strings"

	"github.com/BaSui01/genflow/llm/tokenizer"
	"github.com/BaSui01/genflow/types"
)

const defaultSystemPrompt = `You are a professional content writer. Write well-structured markdown.
When sources are provided, ground factual claims in them and cite them inline as [n].
To include a chart, emit a fenced block tagged chart containing JSON {"type","title","data"}.
Use $$...$$ for display math and markdown tables for tabular data.`

const clarificationInstruction = `The user's request is empty. Do not invent a topic.
Reply with a short, friendly message asking the user what they would like you to write.`

// DefaultCitationBudget is the token budget for the sources section.
const DefaultCitationBudget = 2000

// PromptBuilder assembles the messages sent to the generation provider.
type PromptBuilder struct {
	SystemPrompt string
	Counter      types.TokenCounter
	Budget       int
}

// NewPromptBuilder returns a builder with defaults for zero arguments.
func NewPromptBuilder(systemPrompt string, counter types.TokenCounter, budget int) *PromptBuilder {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}
	if counter == nil {
		counter = tokenizer.NewCounterFrom(tokenizer.NewEstimatorTokenizer("", 0), nil)
	}
	if budget <= 0 {
		budget = DefaultCitationBudget
	}
	return &PromptBuilder{SystemPrompt: systemPrompt, Counter: counter, Budget: budget}
}

// Build returns the system and user messages for state.
func (b *PromptBuilder) Build(state *WorkflowState) []types.Message {
	return []types.Message{
		types.SystemMessage(b.SystemPrompt),
		types.UserMessage(b.userContent(state)),
	}
}

func (b *PromptBuilder) userContent(state *WorkflowState) string {
	prompt := strings.TrimSpace(state.Prompt)
	if prompt == "" {
		return clarificationInstruction
	}

	var sb strings.Builder
	sb.WriteString("Request:\n")
	sb.WriteString(prompt)

	if len(state.SearchResults) > 0 {
		sb.WriteString("\n\nSources:\n")
		sb.WriteString(b.citations(state.SearchResults))
		sb.WriteString("\nCite the sources above as [n] where you use them.")
	}
	return sb.String()
}

// citations renders numbered sources. Snippets share whatever budget is left
// after titles and URLs; URLs are never shortened or dropped.
func (b *PromptBuilder) citations(results []types.SearchResult) string {
	heads := make([]string, len(results))
	used := 0
	for i, r := range results {
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = r.URL
		}
		heads[i] = fmt.Sprintf("[%d] %s\nURL: %s\n", i+1, title, r.URL)
		used += b.Counter.CountTokens(heads[i])
	}

	perSnippet := 0
	if remaining := b.Budget - used; remaining > 0 {
		perSnippet = remaining / len(results)
	}

	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(heads[i])
		if snippet := truncateTokens(b.Counter, strings.TrimSpace(r.Snippet), perSnippet); snippet != "" {
			sb.WriteString(snippet)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// truncateTokens returns the longest rune prefix of text within limit tokens.
func truncateTokens(counter types.TokenCounter, text string, limit int) string {
	if text == "" || limit <= 0 {
		return ""
	}
	if counter.CountTokens(text) <= limit {
		return text
	}
	runes := []rune(text)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if counter.CountTokens(string(runes[:mid])+"…") <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return ""
	}
	return strings.TrimSpace(string(runes[:lo])) + "…"
}
