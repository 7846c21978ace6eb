package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

// MemoryStore keeps sessions and approvals in process memory. Values are
// cloned on the way in and out.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]*workflow.SessionRecord
	approvals map[string]*workflow.ApprovalRequest
	now       func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]*workflow.SessionRecord),
		approvals: make(map[string]*workflow.ApprovalRequest),
		now:       time.Now,
	}
}

// Load implements workflow.Store.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*workflow.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, sessionNotFound(sessionID)
	}
	return cloneRecord(rec), nil
}

// Save implements workflow.Store.
func (s *MemoryStore) Save(_ context.Context, sessionID string, patch workflow.SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &workflow.SessionRecord{SessionID: sessionID, Status: workflow.StatusIdle, CreatedAt: now}
		s.sessions[sessionID] = rec
	}
	patch.Apply(rec)
	rec.UpdatedAt = now
	return nil
}

// CreateApprovalRequest implements workflow.Store.
func (s *MemoryStore) CreateApprovalRequest(_ context.Context, req *workflow.ApprovalRequest) (*workflow.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.approvals[req.ID]; exists {
		return nil, types.NewError(types.ErrStoreFailure, fmt.Sprintf("approval %s already exists", req.ID))
	}
	s.approvals[req.ID] = req.Clone()
	return req.Clone(), nil
}

// GetApprovalRequest implements workflow.Store.
func (s *MemoryStore) GetApprovalRequest(_ context.Context, approvalID string) (*workflow.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.approvals[approvalID]
	if !ok {
		return nil, approvalNotFound(approvalID)
	}
	return req.Clone(), nil
}

// UpdateApprovalRequest implements workflow.Store.
func (s *MemoryStore) UpdateApprovalRequest(_ context.Context, req *workflow.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.approvals[req.ID]
	if !ok {
		return approvalNotFound(req.ID)
	}
	if cur.Status != workflow.ApprovalPending {
		return approvalResolved(req.ID, cur.Status)
	}
	s.approvals[req.ID] = req.Clone()
	return nil
}

// Ping implements HealthChecker.
func (s *MemoryStore) Ping(context.Context) error { return nil }

func cloneRecord(r *workflow.SessionRecord) *workflow.SessionRecord {
	c := *r
	c.Document = r.Document.Clone()
	if r.Charts != nil {
		c.Charts = make([]workflow.Chart, len(r.Charts))
		copy(c.Charts, r.Charts)
		for i := range c.Charts {
			c.Charts[i].Data = append([]byte(nil), r.Charts[i].Data...)
		}
	}
	if r.Metadata != nil {
		c.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	c.Snapshot = append([]byte(nil), r.Snapshot...)
	return &c
}
