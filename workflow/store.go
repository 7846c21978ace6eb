package workflow

import (
	"context"
	"time"
)

// SessionRecord is what the persistence store keeps per session.
type SessionRecord struct {
	SessionID string         `json:"session_id"`
	Prompt    string         `json:"prompt"`
	Content   string         `json:"content,omitempty"`
	Document  *Document      `json:"document,omitempty"`
	Charts    []Chart        `json:"charts,omitempty"`
	Status    Status         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Snapshot  []byte         `json:"snapshot,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// SessionPatch is a partial update. Nil fields are left untouched; Metadata
// keys are merged.
type SessionPatch struct {
	Prompt   *string
	Content  *string
	Document *Document
	Charts   []Chart
	Status   *Status
	Error    *string
	Metadata map[string]any
	Snapshot []byte
}

// Apply merges the patch into r.
func (p SessionPatch) Apply(r *SessionRecord) {
	if p.Prompt != nil {
		r.Prompt = *p.Prompt
	}
	if p.Content != nil {
		r.Content = *p.Content
	}
	if p.Document != nil {
		r.Document = p.Document.Clone()
	}
	if p.Charts != nil {
		r.Charts = make([]Chart, len(p.Charts))
		for i, c := range p.Charts {
			r.Charts[i] = c.clone()
		}
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Error != nil {
		r.Error = *p.Error
	}
	if len(p.Metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			r.Metadata[k] = v
		}
	}
	if p.Snapshot != nil {
		r.Snapshot = append([]byte(nil), p.Snapshot...)
	}
}

// Store is the persistence contract the engine consumes. Implementations
// return a *types.Error with code SESSION_NOT_FOUND or APPROVAL_NOT_FOUND for
// missing records.
//
// UpdateApprovalRequest is a compare-and-set from PENDING: it only applies
// while the stored request is still pending and otherwise fails with
// APPROVAL_ALREADY_RESOLVED, leaving the stored verdict untouched.
type Store interface {
	Load(ctx context.Context, sessionID string) (*SessionRecord, error)
	Save(ctx context.Context, sessionID string, patch SessionPatch) error
	CreateApprovalRequest(ctx context.Context, req *ApprovalRequest) (*ApprovalRequest, error)
	GetApprovalRequest(ctx context.Context, approvalID string) (*ApprovalRequest, error)
	UpdateApprovalRequest(ctx context.Context, req *ApprovalRequest) error
}

func ptr[T any](v T) *T { return &v }
