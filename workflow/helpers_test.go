package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/llm/search"
	"github.com/BaSui01/genflow/types"
)

// fakeStore is an in-memory Store with optional failure hooks.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*SessionRecord
	approvals map[string]*ApprovalRequest

	saveFn   func(sessionID string, patch SessionPatch) error
	createFn func(req *ApprovalRequest) error
	// updateFn runs under the lock before the stored request is read
	updateFn func(req *ApprovalRequest)
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:  make(map[string]*SessionRecord),
		approvals: make(map[string]*ApprovalRequest),
	}
}

func (s *fakeStore) Load(_ context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found: "+sessionID)
	}
	cp := *rec
	cp.Snapshot = append([]byte(nil), rec.Snapshot...)
	return &cp, nil
}

func (s *fakeStore) Save(_ context.Context, sessionID string, patch SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveFn != nil {
		if err := s.saveFn(sessionID, patch); err != nil {
			return err
		}
	}
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &SessionRecord{SessionID: sessionID, CreatedAt: time.Now()}
		s.sessions[sessionID] = rec
	}
	patch.Apply(rec)
	rec.UpdatedAt = time.Now()
	return nil
}

func (s *fakeStore) CreateApprovalRequest(_ context.Context, req *ApprovalRequest) (*ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createFn != nil {
		if err := s.createFn(req); err != nil {
			return nil, err
		}
	}
	s.approvals[req.ID] = req.Clone()
	return req.Clone(), nil
}

func (s *fakeStore) GetApprovalRequest(_ context.Context, id string) (*ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.approvals[id]
	if !ok {
		return nil, types.NewError(types.ErrApprovalNotFound, "approval not found: "+id)
	}
	return req.Clone(), nil
}

func (s *fakeStore) UpdateApprovalRequest(_ context.Context, req *ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateFn != nil {
		s.updateFn(req)
	}
	cur, ok := s.approvals[req.ID]
	if !ok {
		return types.NewError(types.ErrApprovalNotFound, "approval not found: "+req.ID)
	}
	if cur.Status != ApprovalPending {
		return types.NewError(types.ErrApprovalResolved, "approval already resolved: "+req.ID)
	}
	s.approvals[req.ID] = req.Clone()
	return nil
}

func (s *fakeStore) record(sessionID string) *SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[sessionID]
}

func staticGenerator(content string) llm.GeneratorFunc {
	return func(context.Context, []types.Message, llm.GenerateOptions) (string, error) {
		return content, nil
	}
}

func failingGenerator(msg string) llm.GeneratorFunc {
	return func(context.Context, []types.Message, llm.GenerateOptions) (string, error) {
		return "", fmt.Errorf("%s", msg)
	}
}

func staticSearch(results ...types.SearchResult) search.ProviderFunc {
	return func(context.Context, string, search.Options) ([]types.SearchResult, error) {
		return results, nil
	}
}

func failingSearch(msg string) search.ProviderFunc {
	return func(context.Context, string, search.Options) ([]types.SearchResult, error) {
		return nil, fmt.Errorf("%s", msg)
	}
}

func sampleResults(n int) []types.SearchResult {
	out := make([]types.SearchResult, n)
	for i := range out {
		out[i] = types.SearchResult{
			Title:   fmt.Sprintf("Result %d", i+1),
			URL:     fmt.Sprintf("https://example.com/%d", i+1),
			Snippet: fmt.Sprintf("snippet number %d", i+1),
			Source:  "example.com",
		}
	}
	return out
}

type recordingMetrics struct {
	mu             sync.Mutex
	nodes          []string
	outcomes       []string
	searchFailures int
}

func (m *recordingMetrics) RecordWorkflowNode(node, _ string, _ time.Duration) {
	m.mu.Lock()
	m.nodes = append(m.nodes, node)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordWorkflowRun(outcome string, _ time.Duration) {
	m.mu.Lock()
	m.outcomes = append(m.outcomes, outcome)
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordSearchFailure(string) {
	m.mu.Lock()
	m.searchFailures++
	m.mu.Unlock()
}
