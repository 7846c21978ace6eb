package persistence

import (
	"fmt"

	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

func sessionNotFound(sessionID string) error {
	return types.NewError(types.ErrSessionNotFound, fmt.Sprintf("session %s not found", sessionID)).
		WithHTTPStatus(404)
}

func approvalNotFound(approvalID string) error {
	return types.NewError(types.ErrApprovalNotFound, fmt.Sprintf("approval %s not found", approvalID)).
		WithHTTPStatus(404)
}

// approvalResolved 审批已离开 PENDING，更新被拒绝
func approvalResolved(approvalID string, status workflow.ApprovalStatus) error {
	return types.NewError(types.ErrApprovalResolved, fmt.Sprintf("approval %s already %s", approvalID, status)).
		WithHTTPStatus(409)
}

func storeError(op string, err error) error {
	return types.NewError(types.ErrStoreFailure, op+" failed").
		WithCause(err).
		WithHTTPStatus(500)
}
