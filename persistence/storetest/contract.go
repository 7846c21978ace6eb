// Package storetest holds the behavioral contract every workflow.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

func ptr[T any](v T) *T { return &v }

// RunStoreContract verifies store against the workflow.Store contract.
func RunStoreContract(t *testing.T, store workflow.Store) {
	ctx := context.Background()
	prefix := fmt.Sprintf("contract-%d", time.Now().UnixNano())

	t.Run("Load missing session", func(t *testing.T) {
		_, err := store.Load(ctx, prefix+"-missing")
		assert.True(t, types.IsErrorCode(err, types.ErrSessionNotFound), "got %v", err)
	})

	t.Run("Save creates and Load returns", func(t *testing.T) {
		id := prefix + "-create"
		doc, charts := workflow.ParseDocument("# Title\n\n![img](https://img.test/a.png)")
		err := store.Save(ctx, id, workflow.SessionPatch{
			Prompt:   ptr("hello"),
			Content:  ptr("# Title"),
			Document: doc,
			Charts:   charts,
			Status:   ptr(workflow.StatusCompleted),
			Metadata: map[string]any{"source": "contract"},
			Snapshot: []byte(`{"session_id":"x"}`),
		})
		require.NoError(t, err)

		rec, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, rec.SessionID)
		assert.Equal(t, "hello", rec.Prompt)
		assert.Equal(t, "# Title", rec.Content)
		assert.Equal(t, workflow.StatusCompleted, rec.Status)
		require.NotNil(t, rec.Document)
		assert.Equal(t, doc.Blocks, rec.Document.Blocks)
		assert.Equal(t, charts, rec.Charts)
		assert.Equal(t, "contract", rec.Metadata["source"])
		assert.JSONEq(t, `{"session_id":"x"}`, string(rec.Snapshot))
		assert.False(t, rec.UpdatedAt.IsZero())
	})

	t.Run("Save patches only given fields", func(t *testing.T) {
		id := prefix + "-patch"
		require.NoError(t, store.Save(ctx, id, workflow.SessionPatch{
			Prompt:   ptr("p"),
			Content:  ptr("kept"),
			Status:   ptr(workflow.StatusSaving),
			Metadata: map[string]any{"a": "1"},
		}))
		require.NoError(t, store.Save(ctx, id, workflow.SessionPatch{
			Status:   ptr(workflow.StatusError),
			Error:    ptr("boom"),
			Metadata: map[string]any{"b": "2"},
		}))

		rec, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "p", rec.Prompt)
		assert.Equal(t, "kept", rec.Content)
		assert.Equal(t, workflow.StatusError, rec.Status)
		assert.Equal(t, "boom", rec.Error)
		assert.Equal(t, "1", rec.Metadata["a"])
		assert.Equal(t, "2", rec.Metadata["b"])
	})

	t.Run("Approval lifecycle", func(t *testing.T) {
		created := time.Now().UTC().Truncate(time.Second)
		req := &workflow.ApprovalRequest{
			ID:        prefix + "-approval",
			SessionID: prefix + "-session",
			Kind:      workflow.ApprovalKindGenerate,
			Payload:   []byte(`{"prompt":"p"}`),
			Status:    workflow.ApprovalPending,
			CreatedAt: created,
		}
		out, err := store.CreateApprovalRequest(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, req.ID, out.ID)

		got, err := store.GetApprovalRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ApprovalPending, got.Status)
		assert.Equal(t, req.SessionID, got.SessionID)
		assert.JSONEq(t, `{"prompt":"p"}`, string(got.Payload))
		assert.True(t, created.Equal(got.CreatedAt))
		assert.Nil(t, got.ResolvedAt)

		resolved := created.Add(time.Minute)
		got.Status = workflow.ApprovalRejected
		got.Comment = "no"
		got.ResolvedAt = &resolved
		require.NoError(t, store.UpdateApprovalRequest(ctx, got))

		got, err = store.GetApprovalRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ApprovalRejected, got.Status)
		assert.Equal(t, "no", got.Comment)
		require.NotNil(t, got.ResolvedAt)
		assert.True(t, resolved.Equal(*got.ResolvedAt))
	})

	t.Run("Approval resolves once", func(t *testing.T) {
		req := &workflow.ApprovalRequest{
			ID:        prefix + "-once",
			SessionID: prefix + "-session",
			Kind:      workflow.ApprovalKindGenerate,
			Status:    workflow.ApprovalPending,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		_, err := store.CreateApprovalRequest(ctx, req)
		require.NoError(t, err)

		approve := req.Clone()
		approve.Status = workflow.ApprovalApproved
		require.NoError(t, store.UpdateApprovalRequest(ctx, approve))

		reject := req.Clone()
		reject.Status = workflow.ApprovalRejected
		err = store.UpdateApprovalRequest(ctx, reject)
		assert.True(t, types.IsErrorCode(err, types.ErrApprovalResolved), "got %v", err)

		got, err := store.GetApprovalRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.ApprovalApproved, got.Status)
	})

	t.Run("Concurrent verdicts", func(t *testing.T) {
		req := &workflow.ApprovalRequest{
			ID:        prefix + "-race",
			SessionID: prefix + "-session",
			Kind:      workflow.ApprovalKindGenerate,
			Status:    workflow.ApprovalPending,
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		_, err := store.CreateApprovalRequest(ctx, req)
		require.NoError(t, err)

		const writers = 8
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			winner []workflow.ApprovalStatus
		)
		for i := range writers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				verdict := req.Clone()
				verdict.Status = workflow.ApprovalApproved
				if i%2 == 1 {
					verdict.Status = workflow.ApprovalRejected
				}
				err := store.UpdateApprovalRequest(ctx, verdict)
				if err == nil {
					mu.Lock()
					winner = append(winner, verdict.Status)
					mu.Unlock()
					return
				}
				assert.True(t, types.IsErrorCode(err, types.ErrApprovalResolved), "got %v", err)
			}()
		}
		wg.Wait()

		require.Len(t, winner, 1)
		got, err := store.GetApprovalRequest(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, winner[0], got.Status)
	})

	t.Run("Approval missing", func(t *testing.T) {
		_, err := store.GetApprovalRequest(ctx, prefix+"-nope")
		assert.True(t, types.IsErrorCode(err, types.ErrApprovalNotFound), "got %v", err)

		err = store.UpdateApprovalRequest(ctx, &workflow.ApprovalRequest{ID: prefix + "-nope", Status: workflow.ApprovalApproved})
		assert.True(t, types.IsErrorCode(err, types.ErrApprovalNotFound), "got %v", err)
	})

	t.Run("Driver round trip", func(t *testing.T) {
		gen := llm.GeneratorFunc(func(context.Context, []types.Message, llm.GenerateOptions) (string, error) {
			return "body", nil
		})
		d := workflow.NewDriver(store, nil, gen)
		id := prefix + "-driver"

		states, err := workflow.Collect(d.Run(ctx, id, "Write a haiku about rain", workflow.Inputs{RequireApproval: true}))
		require.NoError(t, err)
		last := states[len(states)-1]
		require.NotNil(t, last.PendingApproval)

		_, err = d.Gate().Resolve(ctx, last.PendingApproval.ID, workflow.Decision{Approved: true})
		require.NoError(t, err)

		states, err = workflow.Collect(d.Resume(ctx, id))
		require.NoError(t, err)
		assert.Equal(t, workflow.StatusCompleted, states[len(states)-1].Status)

		rec, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "body", rec.Content)
		assert.Equal(t, workflow.StatusCompleted, rec.Status)
	})
}
