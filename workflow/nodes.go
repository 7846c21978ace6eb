package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/llm/search"
	"github.com/BaSui01/genflow/types"
)

// NodeFunc is one state transformation step. Nodes never mutate their input
// and never return errors: failures are recorded on the returned state.
type NodeFunc func(ctx context.Context, s *WorkflowState) *WorkflowState

// Nodes holds the dependencies shared by the workflow nodes.
type Nodes struct {
	searcher   search.Provider
	generator  llm.Generator
	store      Store
	gate       *ApprovalGate
	prompts    *PromptBuilder
	metrics    MetricsRecorder
	maxResults int
	logger     *zap.Logger
}

// NewNodes wires the nodes. A nil searcher disables search; the analyze node
// still decides NeedsSearch and the search node returns no results.
func NewNodes(searcher search.Provider, generator llm.Generator, store Store, gate *ApprovalGate,
	prompts *PromptBuilder, metrics MetricsRecorder, maxResults int, logger *zap.Logger) *Nodes {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if prompts == nil {
		prompts = NewPromptBuilder("", nil, 0)
	}
	if maxResults <= 0 {
		maxResults = search.DefaultMaxResults
	}
	return &Nodes{
		searcher:   searcher,
		generator:  generator,
		store:      store,
		gate:       gate,
		prompts:    prompts,
		metrics:    metrics,
		maxResults: maxResults,
		logger:     logger.With(zap.String("component", "workflow_nodes")),
	}
}

// ByName returns the node registered under name.
func (n *Nodes) ByName(name string) (NodeFunc, bool) {
	switch name {
	case NodeAnalyze:
		return n.Analyze, true
	case NodeSearch:
		return n.Search, true
	case NodeApproval:
		return n.AwaitApproval, true
	case NodeGenerate:
		return n.Generate, true
	case NodeFormat:
		return n.Format, true
	case NodeSave:
		return n.Save, true
	}
	return nil, false
}

// Analyze decides whether the prompt needs external facts.
func (n *Nodes) Analyze(_ context.Context, s *WorkflowState) *WorkflowState {
	if s.Status.IsTerminal() {
		return s
	}
	next := s.Clone()
	next.enter(NodeAnalyze)
	next.Status = StatusAnalyzing

	needs := NeedsSearch(next.Prompt)
	next.NeedsSearch = &needs

	switch {
	case needs:
		next.Status = StatusSearching
	case next.Inputs.RequireApproval:
		next.Status = StatusWaitingApproval
	default:
		next.Status = StatusGenerating
	}
	n.logger.Debug("prompt analyzed",
		zap.String("session_id", next.SessionID),
		zap.Bool("needs_search", needs),
		zap.String("next", string(next.Status)))
	return next
}

// Search enriches the state with search results. It never fails the run.
func (n *Nodes) Search(ctx context.Context, s *WorkflowState) *WorkflowState {
	if s.Status.IsTerminal() {
		return s
	}
	next := s.Clone()
	next.enter(NodeSearch)
	next.Status = StatusSearching
	next.SearchResults = []types.SearchResult{}

	if next.NeedsSearch != nil && *next.NeedsSearch && n.searcher != nil {
		limit := next.Inputs.MaxResults
		if limit <= 0 {
			limit = n.maxResults
		}
		results, err := n.safeSearch(ctx, next.Prompt, limit)
		if err != nil {
			n.logger.Warn("search failed, continuing without results",
				zap.String("session_id", next.SessionID),
				zap.String("provider", n.searcher.Name()),
				zap.Error(err))
			n.metrics.RecordSearchFailure(n.searcher.Name())
		} else {
			next.SearchResults = search.Limit(results, limit)
		}
	}

	if next.Inputs.RequireApproval {
		next.Status = StatusWaitingApproval
	} else {
		next.Status = StatusGenerating
	}
	return next
}

func (n *Nodes) safeSearch(ctx context.Context, query string, limit int) (results []types.SearchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search provider panicked: %v", r)
		}
	}()
	return n.searcher.Search(ctx, query, search.Options{MaxResults: limit})
}

// AwaitApproval creates a pending approval request. The driver suspends on
// the returned state.
func (n *Nodes) AwaitApproval(ctx context.Context, s *WorkflowState) *WorkflowState {
	if s.Status.IsTerminal() {
		return s
	}
	next := s.Clone()
	next.enter(NodeApproval)
	next.Status = StatusWaitingApproval

	if n.gate == nil {
		next.fail("approval required but no approval gate is configured")
		return next
	}
	req, err := n.gate.Request(ctx, next)
	if err != nil {
		n.logger.Error("failed to create approval request",
			zap.String("session_id", next.SessionID), zap.Error(err))
		next.fail(fmt.Sprintf("approval request failed: %v", err))
		return next
	}
	next.PendingApproval = req
	return next
}

// Generate calls the generation provider. Its failure is fatal to the run.
func (n *Nodes) Generate(ctx context.Context, s *WorkflowState) *WorkflowState {
	if s.Status.IsTerminal() {
		return s
	}
	next := s.Clone()
	next.enter(NodeGenerate)
	next.Status = StatusGenerating

	if n.generator == nil {
		next.fail("generation provider is not configured")
		return next
	}
	messages := n.prompts.Build(next)
	content, err := n.generator.Generate(ctx, messages, llm.GenerateOptions{
		Model:       next.Inputs.Model,
		Temperature: next.Inputs.Temperature,
		MaxTokens:   next.Inputs.MaxTokens,
	})
	if err != nil && ctx.Err() != nil {
		// 调用方取消不是生成失败，交给驱动器按取消处理
		n.logger.Info("generation canceled",
			zap.String("session_id", next.SessionID), zap.Error(ctx.Err()))
		return s
	}
	if err != nil {
		n.logger.Error("generation failed",
			zap.String("session_id", next.SessionID), zap.Error(err))
		next.fail(fmt.Sprintf("generation failed: %v", err))
		return next
	}
	if strings.TrimSpace(content) == "" {
		next.fail("generation failed: provider returned empty content")
		return next
	}

	next.GeneratedContent = content
	next.Status = StatusFormatting
	return next
}

// Format turns generated text into a Document and extracts chart artifacts.
func (n *Nodes) Format(_ context.Context, s *WorkflowState) *WorkflowState {
	if s.Status.IsTerminal() {
		return s
	}
	next := s.Clone()
	next.enter(NodeFormat)
	next.Status = StatusFormatting

	next.Document, next.Charts = ParseDocument(next.GeneratedContent)
	next.Status = StatusSaving
	return next
}

// Save persists the result. On failure the content stays on the state.
func (n *Nodes) Save(ctx context.Context, s *WorkflowState) *WorkflowState {
	if s.Status.IsTerminal() {
		return s
	}
	next := s.Clone()
	next.enter(NodeSave)
	next.Status = StatusSaving

	if n.store == nil {
		next.fail("save failed: no store configured")
		return next
	}
	err := n.store.Save(ctx, next.SessionID, SessionPatch{
		Prompt:   ptr(next.Prompt),
		Content:  ptr(next.GeneratedContent),
		Document: next.Document,
		Charts:   next.Charts,
		Status:   ptr(StatusCompleted),
		Error:    ptr(""),
	})
	if err != nil {
		n.logger.Error("failed to save session",
			zap.String("session_id", next.SessionID), zap.Error(err))
		next.fail(fmt.Sprintf("save failed: %v", err))
		return next
	}
	next.Status = StatusCompleted
	return next
}
