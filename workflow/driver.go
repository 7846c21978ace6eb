package workflow

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/llm/search"
	"github.com/BaSui01/genflow/types"
)

const tracerName = "github.com/BaSui01/genflow/workflow"

// Run outcomes reported to MetricsRecorder.RecordWorkflowRun.
const (
	OutcomeCompleted = "completed"
	OutcomeError     = "error"
	OutcomeSuspended = "suspended"
	OutcomeCanceled  = "canceled"
	OutcomeDefect    = "defect"
	OutcomeAbandoned = "abandoned"
)

// ErrSequenceConsumed is yielded when a Run or Resume sequence is iterated
// a second time.
var ErrSequenceConsumed = errors.New("workflow: sequence already consumed")

// Driver sequences the nodes for one session at a time per session id and
// yields a snapshot after every node.
type Driver struct {
	store   Store
	gate    *ApprovalGate
	nodes   *Nodes
	opts    driverOptions
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics MetricsRecorder

	mu     sync.Mutex
	active map[string]struct{}
}

// NewDriver builds a driver. searcher may be nil; generator and store are
// required for a run to complete.
func NewDriver(store Store, searcher search.Provider, generator llm.Generator, opts ...Option) *Driver {
	o := driverOptions{
		clock:      time.Now,
		maxResults: search.DefaultMaxResults,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	gate := NewApprovalGate(store, o.logger)
	gate.clock = o.clock
	prompts := NewPromptBuilder(o.systemPrompt, o.counter, o.promptBudget)

	return &Driver{
		store:   store,
		gate:    gate,
		nodes:   NewNodes(searcher, generator, store, gate, prompts, o.metrics, o.maxResults, o.logger),
		opts:    o,
		logger:  o.logger.With(zap.String("component", "workflow_driver")),
		tracer:  o.tracer,
		metrics: o.metrics,
		active:  make(map[string]struct{}),
	}
}

// Gate returns the approval gate used by the driver.
func (d *Driver) Gate() *ApprovalGate { return d.gate }

// Store returns the persistence store.
func (d *Driver) Store() Store { return d.store }

// Run starts a new run for the session. The returned sequence yields a
// snapshot after every node and ends when the state is terminal or waiting
// for approval. Errors are yielded with a nil state as the final element.
// The sequence may be iterated once.
func (d *Driver) Run(ctx context.Context, sessionID, prompt string, in Inputs) iter.Seq2[*WorkflowState, error] {
	return d.once(func(yield func(*WorkflowState, error) bool) {
		if !d.acquire(sessionID) {
			yield(nil, busyError(sessionID))
			return
		}
		defer d.release(sessionID)

		started := d.opts.clock()
		state := newInitialStateAt(sessionID, prompt, started)
		state.Inputs = d.runInputs(ctx, sessionID, in)

		d.logger.Info("workflow run started",
			zap.String("session_id", sessionID),
			zap.Bool("require_approval", state.Inputs.RequireApproval))
		if err := d.store.Save(ctx, sessionID, d.checkpointPatch(state, ptr(prompt))); err != nil {
			d.logger.Warn("initial checkpoint failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		d.drive(ctx, state, started, yield)
	})
}

// Resume continues a session from its last checkpoint. A session waiting
// for approval consults the gate: pending yields the current state and
// stops, approved continues with generation, rejected ends in error.
func (d *Driver) Resume(ctx context.Context, sessionID string) iter.Seq2[*WorkflowState, error] {
	return d.once(func(yield func(*WorkflowState, error) bool) {
		if !d.acquire(sessionID) {
			yield(nil, busyError(sessionID))
			return
		}
		defer d.release(sessionID)

		started := d.opts.clock()
		state, err := d.loadSnapshot(ctx, sessionID)
		if err != nil {
			yield(nil, err)
			return
		}
		if state.Status.IsTerminal() {
			yield(state.Clone(), nil)
			return
		}

		if suspended(state) {
			req, err := d.gate.Decision(ctx, state.PendingApproval.ID)
			if err != nil {
				yield(nil, fmt.Errorf("read approval %s: %w", state.PendingApproval.ID, err))
				return
			}
			next := applyDecision(state, req)
			if next == state {
				d.logger.Info("approval still pending",
					zap.String("session_id", sessionID),
					zap.String("approval_id", req.ID))
				yield(state.Clone(), nil)
				return
			}
			d.logger.Info("approval decided",
				zap.String("session_id", sessionID),
				zap.String("approval_id", req.ID),
				zap.String("status", string(req.Status)))
			next = d.checkpoint(ctx, next)
			state = next
			if !yield(state.Clone(), nil) {
				d.finish(state, started, OutcomeAbandoned)
				return
			}
		}
		d.drive(ctx, state, started, yield)
	})
}

func (d *Driver) drive(ctx context.Context, state *WorkflowState, started time.Time, yield func(*WorkflowState, error) bool) {
	for {
		if state.Status.IsTerminal() {
			outcome := OutcomeCompleted
			if state.Status == StatusError {
				outcome = OutcomeError
			}
			d.finish(state, started, outcome)
			return
		}
		if suspended(state) {
			d.finish(state, started, OutcomeSuspended)
			return
		}
		if err := ctx.Err(); err != nil {
			d.cancel(state, started, err, yield)
			return
		}
		if state.Status == StatusIdle {
			// idle→analyzing 不执行节点，只让消费者先看到 analyzing
			next := state.Clone()
			next.Status = StatusAnalyzing
			state = d.checkpoint(ctx, next)
			if !yield(state.Clone(), nil) {
				d.finish(state, started, OutcomeAbandoned)
				return
			}
			continue
		}

		name, ok := nextNode(state.Status)
		if !ok {
			d.defect(state, started, checkTransition(state.SessionID, state.Status, state.Status), yield)
			return
		}
		node, _ := d.nodes.ByName(name)
		next := d.runNode(ctx, name, node, state)
		// 调用方已放弃：节点结果不落盘，检查点仍停在节点之前，Resume 会重跑该节点
		if err := ctx.Err(); err != nil {
			d.cancel(state, started, err, yield)
			return
		}

		if err := checkTransition(state.SessionID, state.Status, next.Status); err != nil {
			d.defect(state, started, err, yield)
			return
		}
		if name == NodeApproval && next.Status == StatusWaitingApproval && next.PendingApproval == nil {
			d.defect(state, started, &DefectError{SessionID: state.SessionID, Node: name, From: state.Status, To: next.Status}, yield)
			return
		}

		state = d.checkpoint(ctx, next)
		if !yield(state.Clone(), nil) {
			d.finish(state, started, OutcomeAbandoned)
			return
		}
	}
}

func (d *Driver) runNode(ctx context.Context, name string, node NodeFunc, state *WorkflowState) *WorkflowState {
	ctx, span := d.tracer.Start(ctx, "workflow."+name, trace.WithAttributes(
		attribute.String("session_id", state.SessionID),
		attribute.String("status.from", string(state.Status)),
	))
	defer span.End()

	start := time.Now()
	next := node(ctx, state)
	elapsed := time.Since(start)

	span.SetAttributes(attribute.String("status.to", string(next.Status)))
	if next.Status == StatusError {
		span.SetStatus(codes.Error, next.Error)
	}
	d.metrics.RecordWorkflowNode(name, string(next.Status), elapsed)
	d.logger.Debug("node finished",
		zap.String("session_id", state.SessionID),
		zap.String("node", name),
		zap.String("status", string(next.Status)),
		zap.Duration("duration", elapsed))
	return next
}

// checkpoint persists the state. A suspension that cannot be persisted
// could never be resumed, so it fails the run.
func (d *Driver) checkpoint(ctx context.Context, state *WorkflowState) *WorkflowState {
	err := d.store.Save(ctx, state.SessionID, d.checkpointPatch(state, nil))
	if err == nil {
		return state
	}
	if !suspended(state) {
		d.logger.Warn("checkpoint failed",
			zap.String("session_id", state.SessionID),
			zap.String("status", string(state.Status)),
			zap.Error(err))
		return state
	}
	d.logger.Error("failed to checkpoint suspended session",
		zap.String("session_id", state.SessionID), zap.Error(err))
	failed := state.Clone()
	failed.fail(fmt.Sprintf("checkpoint failed: %v", err))
	return failed
}

func (d *Driver) checkpointPatch(state *WorkflowState, prompt *string) SessionPatch {
	patch := SessionPatch{
		Prompt: prompt,
		Status: ptr(state.Status),
		Error:  ptr(state.Error),
	}
	snapshot, err := EncodeSnapshot(state)
	if err != nil {
		d.logger.Error("snapshot encoding failed", zap.String("session_id", state.SessionID), zap.Error(err))
		return patch
	}
	patch.Snapshot = snapshot
	return patch
}

func (d *Driver) cancel(state *WorkflowState, started time.Time, err error, yield func(*WorkflowState, error) bool) {
	d.finish(state, started, OutcomeCanceled)
	yield(nil, err)
}

func (d *Driver) defect(state *WorkflowState, started time.Time, err error, yield func(*WorkflowState, error) bool) {
	d.logger.Error("workflow defect", zap.String("session_id", state.SessionID), zap.Error(err))
	d.finish(state, started, OutcomeDefect)
	yield(nil, err)
}

func (d *Driver) finish(state *WorkflowState, started time.Time, outcome string) {
	elapsed := d.opts.clock().Sub(started)
	d.metrics.RecordWorkflowRun(outcome, elapsed)
	fields := []zap.Field{
		zap.String("session_id", state.SessionID),
		zap.String("outcome", outcome),
		zap.Strings("node_history", state.Metadata.NodeHistory),
		zap.Duration("duration", elapsed),
	}
	if state.Error != "" {
		fields = append(fields, zap.String("error", state.Error))
	}
	d.logger.Info("workflow run finished", fields...)
}

func (d *Driver) loadSnapshot(ctx context.Context, sessionID string) (*WorkflowState, error) {
	rec, err := d.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rec.Snapshot) == 0 {
		return nil, types.NewError(types.ErrNoSnapshot,
			fmt.Sprintf("session %s has no checkpoint to resume", sessionID)).
			WithHTTPStatus(http.StatusConflict)
	}
	return DecodeSnapshot(rec.Snapshot)
}

// runInputs applies defaults and the overwrite approval policy.
func (d *Driver) runInputs(ctx context.Context, sessionID string, in Inputs) Inputs {
	in = in.withDefaults(d.opts.defaults)
	if in.Params != nil {
		params := make(map[string]string, len(in.Params))
		for k, v := range in.Params {
			params[k] = v
		}
		in.Params = params
	}
	if !d.opts.approveOverwrite {
		return in
	}
	rec, err := d.store.Load(ctx, sessionID)
	switch {
	case err == nil && rec.Content != "":
		in.RequireApproval = true
		if in.ApprovalKind == "" {
			in.ApprovalKind = ApprovalKindOverwrite
		}
	case err != nil && !types.IsErrorCode(err, types.ErrSessionNotFound):
		d.logger.Warn("could not check for existing content", zap.String("session_id", sessionID), zap.Error(err))
	}
	return in
}

func (d *Driver) once(body func(yield func(*WorkflowState, error) bool)) iter.Seq2[*WorkflowState, error] {
	var used atomic.Bool
	return func(yield func(*WorkflowState, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield(nil, ErrSequenceConsumed)
			return
		}
		body(yield)
	}
}

func (d *Driver) acquire(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.active[sessionID]; busy {
		return false
	}
	d.active[sessionID] = struct{}{}
	return true
}

func (d *Driver) release(sessionID string) {
	d.mu.Lock()
	delete(d.active, sessionID)
	d.mu.Unlock()
}

func busyError(sessionID string) error {
	return types.NewError(types.ErrSessionBusy,
		fmt.Sprintf("session %s already has a run in progress", sessionID)).
		WithHTTPStatus(http.StatusConflict)
}

// Collect drains a sequence and returns every snapshot and the first error.
func Collect(seq iter.Seq2[*WorkflowState, error]) ([]*WorkflowState, error) {
	var states []*WorkflowState
	for s, err := range seq {
		if err != nil {
			return states, err
		}
		states = append(states, s)
	}
	return states, nil
}
