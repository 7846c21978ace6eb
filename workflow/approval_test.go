package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/genflow/types"
)

func newPendingApproval(t *testing.T, gate *ApprovalGate) *ApprovalRequest {
	t.Helper()
	s := NewInitialState("s1", "Write a haiku")
	req, err := gate.Request(context.Background(), s)
	require.NoError(t, err)
	return req
}

func TestApprovalGate_Request(t *testing.T) {
	gate := NewApprovalGate(newFakeStore(), nil)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	gate.clock = func() time.Time { return now }

	req := newPendingApproval(t, gate)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, ApprovalKindGenerate, req.Kind)
	assert.Equal(t, ApprovalPending, req.Status)
	assert.Equal(t, now, req.CreatedAt)
	assert.JSONEq(t, `{"prompt":"Write a haiku","needs_search":false,"result_count":0}`, string(req.Payload))
}

func TestApprovalGate_Resolve(t *testing.T) {
	gate := NewApprovalGate(newFakeStore(), nil)
	req := newPendingApproval(t, gate)
	ctx := context.Background()

	resolved, err := gate.Resolve(ctx, req.ID, Decision{Approved: true, Comment: "ok"})
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, resolved.Status)
	assert.Equal(t, "ok", resolved.Comment)
	require.NotNil(t, resolved.ResolvedAt)

	again, err := gate.Resolve(ctx, req.ID, Decision{Approved: true})
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, again.Status)

	_, err = gate.Resolve(ctx, req.ID, Decision{Approved: false})
	assert.True(t, types.IsErrorCode(err, types.ErrApprovalResolved))

	_, err = gate.Resolve(ctx, "missing", Decision{Approved: true})
	assert.True(t, types.IsErrorCode(err, types.ErrApprovalNotFound))

	got, err := gate.Decision(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, ApprovalApproved, got.Status)
}

func TestApprovalGate_Resolve_ConcurrentVerdict(t *testing.T) {
	tests := []struct {
		name    string
		rival   ApprovalStatus
		approve bool
		wantErr bool
	}{
		{"conflicting verdict", ApprovalRejected, true, true},
		{"same verdict", ApprovalApproved, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			gate := NewApprovalGate(store, nil)
			req := newPendingApproval(t, gate)
			ctx := context.Background()

			// 另一次决议在本次读取之后、写入之前落地
			store.updateFn = func(r *ApprovalRequest) {
				store.updateFn = nil
				other := r.Clone()
				other.Status = tt.rival
				store.approvals[r.ID] = other
			}

			got, err := gate.Resolve(ctx, req.ID, Decision{Approved: tt.approve})
			if tt.wantErr {
				assert.True(t, types.IsErrorCode(err, types.ErrApprovalResolved), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.rival, got.Status)
			}

			stored, err := gate.Decision(ctx, req.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.rival, stored.Status)
		})
	}
}

func TestApplyDecision(t *testing.T) {
	s := NewInitialState("s1", "p")
	s.Status = StatusWaitingApproval
	s.PendingApproval = &ApprovalRequest{ID: "a1", Kind: ApprovalKindOverwrite, Status: ApprovalPending}

	assert.Same(t, s, applyDecision(s, s.PendingApproval))

	approved := applyDecision(s, &ApprovalRequest{ID: "a1", Status: ApprovalApproved})
	assert.Equal(t, StatusGenerating, approved.Status)
	assert.Nil(t, approved.PendingApproval)
	assert.NotNil(t, s.PendingApproval)

	rejected := applyDecision(s, &ApprovalRequest{ID: "a1", Kind: ApprovalKindOverwrite, Status: ApprovalRejected})
	assert.Equal(t, StatusError, rejected.Status)
	assert.Equal(t, "approval rejected: overwrite request a1", rejected.Error)
}
