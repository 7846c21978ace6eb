package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/types"
)

// ApprovalStatus is the decision state of an ApprovalRequest.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Approval kinds used by the engine. Callers may pass their own via Inputs.
const (
	ApprovalKindGenerate  = "generate"
	ApprovalKindOverwrite = "overwrite"
)

// RejectionPrefix starts every error message produced by a rejected approval.
const RejectionPrefix = "approval rejected"

// ApprovalRequest asks a human to confirm a costly or destructive step.
// Once created it is owned by the store.
type ApprovalRequest struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"session_id"`
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     ApprovalStatus  `json:"status"`
	Comment    string          `json:"comment,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy.
func (r *ApprovalRequest) Clone() *ApprovalRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Payload = cloneSlice(r.Payload)
	if r.ResolvedAt != nil {
		t := *r.ResolvedAt
		c.ResolvedAt = &t
	}
	return &c
}

// Decision is an external verdict on an approval request.
type Decision struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment,omitempty"`
}

// ApprovalGate is the suspend/resume primitive. It never blocks: the driver
// stops when a request is pending and the caller resolves it out of band,
// then resumes the session.
type ApprovalGate struct {
	store  Store
	clock  func() time.Time
	logger *zap.Logger
}

// NewApprovalGate creates a gate over the store.
func NewApprovalGate(store Store, logger *zap.Logger) *ApprovalGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalGate{
		store:  store,
		clock:  time.Now,
		logger: logger.With(zap.String("component", "approval_gate")),
	}
}

type approvalPayload struct {
	Prompt      string `json:"prompt"`
	NeedsSearch bool   `json:"needs_search"`
	ResultCount int    `json:"result_count"`
}

// Request creates a pending approval for the state's session.
func (g *ApprovalGate) Request(ctx context.Context, state *WorkflowState) (*ApprovalRequest, error) {
	kind := state.Inputs.ApprovalKind
	if kind == "" {
		kind = ApprovalKindGenerate
	}
	payload, err := json.Marshal(approvalPayload{
		Prompt:      state.Prompt,
		NeedsSearch: state.NeedsSearch != nil && *state.NeedsSearch,
		ResultCount: len(state.SearchResults),
	})
	if err != nil {
		return nil, fmt.Errorf("encode approval payload: %w", err)
	}

	req := &ApprovalRequest{
		ID:        uuid.NewString(),
		SessionID: state.SessionID,
		Kind:      kind,
		Payload:   payload,
		Status:    ApprovalPending,
		CreatedAt: g.clock(),
	}
	created, err := g.store.CreateApprovalRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	g.logger.Info("approval requested",
		zap.String("approval_id", created.ID),
		zap.String("session_id", created.SessionID),
		zap.String("kind", created.Kind))
	return created, nil
}

// Resolve records a decision. Resolving an already resolved request with the
// same verdict is a no-op; a conflicting verdict fails.
func (g *ApprovalGate) Resolve(ctx context.Context, approvalID string, d Decision) (*ApprovalRequest, error) {
	req, err := g.store.GetApprovalRequest(ctx, approvalID)
	if err != nil {
		return nil, err
	}

	want := ApprovalRejected
	if d.Approved {
		want = ApprovalApproved
	}
	if req.Status != ApprovalPending {
		return settled(req, want)
	}

	now := g.clock()
	req.Status = want
	req.Comment = d.Comment
	req.ResolvedAt = &now
	if err := g.store.UpdateApprovalRequest(ctx, req); err != nil {
		if !types.IsErrorCode(err, types.ErrApprovalResolved) {
			return nil, err
		}
		// 并发决议抢先写入，以存储中的结果为准
		cur, getErr := g.store.GetApprovalRequest(ctx, approvalID)
		if getErr != nil {
			return nil, getErr
		}
		return settled(cur, want)
	}

	g.logger.Info("approval resolved",
		zap.String("approval_id", approvalID),
		zap.String("session_id", req.SessionID),
		zap.String("status", string(req.Status)))
	return req, nil
}

// settled answers a verdict on an already resolved request: the same verdict
// is a no-op, a different one is a conflict.
func settled(req *ApprovalRequest, want ApprovalStatus) (*ApprovalRequest, error) {
	if req.Status == want {
		return req, nil
	}
	return nil, types.NewError(types.ErrApprovalResolved,
		fmt.Sprintf("approval %s already %s", req.ID, req.Status)).WithHTTPStatus(409)
}

// Decision reads the current status of a request from the store.
func (g *ApprovalGate) Decision(ctx context.Context, approvalID string) (*ApprovalRequest, error) {
	return g.store.GetApprovalRequest(ctx, approvalID)
}

// applyDecision moves a suspended state past the gate. It returns the state
// unchanged while the request is pending.
func applyDecision(state *WorkflowState, req *ApprovalRequest) *WorkflowState {
	switch req.Status {
	case ApprovalApproved:
		next := state.Clone()
		next.PendingApproval = nil
		next.Status = StatusGenerating
		return next
	case ApprovalRejected:
		next := state.Clone()
		msg := fmt.Sprintf("%s: %s request %s", RejectionPrefix, req.Kind, req.ID)
		if req.Comment != "" {
			msg += " (" + req.Comment + ")"
		}
		next.fail(msg)
		return next
	default:
		return state
	}
}
