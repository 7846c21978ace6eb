package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/api"
	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

// =============================================================================
// 🔀 工作流 Handler
// =============================================================================

const maxSessionIDLength = 128

// WorkflowHandler 工作流处理器，运行结果以 SSE 流式返回
type WorkflowHandler struct {
	driver *workflow.Driver
	logger *zap.Logger
}

// NewWorkflowHandler 创建工作流处理器
func NewWorkflowHandler(driver *workflow.Driver, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		driver: driver,
		logger: logger.With(zap.String("component", "workflow_handler")),
	}
}

// HandleGenerate 处理生成请求
// @Summary 启动生成
// @Description 启动一次工作流运行，逐节点推送状态快照
// @Tags 工作流
// @Accept json
// @Produce text/event-stream
// @Param sessionID path string true "会话 ID"
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {object} api.Event "事件流"
// @Failure 400 {object} Response "无效请求"
// @Failure 409 {object} Response "会话正在运行"
// @Router /api/v1/sessions/{sessionID}/generate [post]
func (h *WorkflowHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}

	var req api.GenerateRequest
	if err := Bind(w, r, &req); err != nil {
		Fail(w, r, err, h.logger)
		return
	}
	ctx := types.WithSessionID(r.Context(), sessionID)
	h.streamSSE(w, r, sessionID, h.driver.Run(ctx, sessionID, req.Prompt, req.Inputs))
}

// HandleResume 处理恢复请求
// @Summary 恢复会话
// @Description 从最近的检查点继续运行
// @Tags 工作流
// @Produce text/event-stream
// @Param sessionID path string true "会话 ID"
// @Success 200 {object} api.Event "事件流"
// @Failure 404 {object} Response "会话不存在"
// @Failure 409 {object} Response "没有检查点或会话正在运行"
// @Router /api/v1/sessions/{sessionID}/resume [post]
func (h *WorkflowHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	ctx := types.WithSessionID(r.Context(), sessionID)
	h.streamSSE(w, r, sessionID, h.driver.Resume(ctx, sessionID))
}

// HandleGetSession 返回会话记录
// @Summary 查询会话
// @Tags 工作流
// @Produce json
// @Param sessionID path string true "会话 ID"
// @Success 200 {object} Response{data=api.SessionResponse}
// @Failure 404 {object} Response "会话不存在"
// @Router /api/v1/sessions/{sessionID} [get]
func (h *WorkflowHandler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	rec, err := h.driver.Store().Load(r.Context(), sessionID)
	if err != nil {
		Fail(w, r, err, h.logger)
		return
	}
	OK(w, r, api.NewSessionResponse(rec))
}

// HandleGetApproval 返回审批请求
// @Summary 查询审批
// @Tags 审批
// @Produce json
// @Param approvalID path string true "审批 ID"
// @Success 200 {object} Response{data=workflow.ApprovalRequest}
// @Failure 404 {object} Response "审批不存在"
// @Router /api/v1/approvals/{approvalID} [get]
func (h *WorkflowHandler) HandleGetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := h.driver.Gate().Decision(r.Context(), chi.URLParam(r, "approvalID"))
	if err != nil {
		Fail(w, r, err, h.logger)
		return
	}
	OK(w, r, req)
}

// HandleResolveApproval 记录审批决定；resume=true 时直接以 SSE 返回恢复后的运行
// @Summary 处理审批
// @Tags 审批
// @Accept json
// @Produce json
// @Produce text/event-stream
// @Param approvalID path string true "审批 ID"
// @Param resume query bool false "决定后立即恢复会话"
// @Param request body api.ResolveApprovalRequest true "审批决定"
// @Success 200 {object} Response{data=workflow.ApprovalRequest}
// @Failure 404 {object} Response "审批不存在"
// @Failure 409 {object} Response "审批已被处理"
// @Router /api/v1/approvals/{approvalID}/resolve [post]
func (h *WorkflowHandler) HandleResolveApproval(w http.ResponseWriter, r *http.Request) {
	approvalID := chi.URLParam(r, "approvalID")

	resume := false
	if raw := r.URL.Query().Get("resume"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			Reject(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "resume must be a boolean")
			return
		}
		resume = v
	}

	var body api.ResolveApprovalRequest
	if err := Bind(w, r, &body); err != nil {
		Fail(w, r, err, h.logger)
		return
	}

	resolved, err := h.driver.Gate().Resolve(r.Context(), approvalID, workflow.Decision{
		Approved: body.Approved,
		Comment:  body.Comment,
	})
	if err != nil {
		Fail(w, r, err, h.logger)
		return
	}

	if !resume {
		OK(w, r, resolved)
		return
	}
	ctx := types.WithSessionID(r.Context(), resolved.SessionID)
	h.streamSSE(w, r, resolved.SessionID, h.driver.Resume(ctx, resolved.SessionID))
}

func (h *WorkflowHandler) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "sessionID")
	if id == "" || len(id) > maxSessionIDLength {
		Reject(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session id")
		return "", false
	}
	return id, true
}

// =============================================================================
// 📡 SSE 输出
// =============================================================================

// streamSSE 将运行序列写为 SSE。运行在产出任何快照前失败时返回普通 JSON 错误。
func (h *WorkflowHandler) streamSSE(w http.ResponseWriter, r *http.Request, sessionID string, seq iter.Seq2[*workflow.WorkflowState, error]) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Fail(w, r, types.NewError(types.ErrInternalError, "streaming not supported"), h.logger)
		return
	}

	next, stop := iter.Pull2(seq)
	defer stop()

	first, err, more := next()
	if more && err != nil {
		Fail(w, r, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, flusher: flusher}
	if err := sink.Send(r.Context(), api.Event{Type: api.EventConnected, SessionID: sessionID}); err != nil {
		return
	}

	pending := more
	pull := func() (*workflow.WorkflowState, error, bool) {
		if pending {
			pending = false
			return first, nil, true
		}
		return next()
	}
	if err := relayEvents(r.Context(), sessionID, pull, sink); err != nil {
		h.logger.Debug("stream closed early",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
}

// eventSink 接收流式事件（SSE 或 WebSocket）
type eventSink interface {
	Send(ctx context.Context, ev api.Event) error
}

type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) Send(_ context.Context, ev api.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// relayEvents 把每个快照转为 state 事件，最后追加一个结束事件：
// complete、error，或挂起等待审批时的 status。
func relayEvents(ctx context.Context, sessionID string, next func() (*workflow.WorkflowState, error, bool), sink eventSink) error {
	var last *workflow.WorkflowState
	for {
		state, err, ok := next()
		if !ok {
			break
		}
		if err != nil {
			return sink.Send(ctx, errorEvent(sessionID, err))
		}
		last = state
		if err := sink.Send(ctx, stateEvent(state)); err != nil {
			return err
		}
	}
	if last == nil {
		return nil
	}
	return sink.Send(ctx, finalEvent(last))
}

func stateEvent(s *workflow.WorkflowState) api.Event {
	return api.Event{
		Type:      api.EventState,
		SessionID: s.SessionID,
		Status:    s.Status,
		Node:      lastNode(s),
		State:     s,
	}
}

func finalEvent(s *workflow.WorkflowState) api.Event {
	ev := api.Event{
		SessionID: s.SessionID,
		Status:    s.Status,
		Node:      lastNode(s),
	}
	switch s.Status {
	case workflow.StatusCompleted:
		ev.Type = api.EventComplete
		ev.State = s
	case workflow.StatusError:
		ev.Type = api.EventError
		ev.Error = s.Error
		ev.State = s
	default:
		ev.Type = api.EventStatus
		if s.PendingApproval != nil {
			ev.ApprovalID = s.PendingApproval.ID
		}
	}
	return ev
}

func errorEvent(sessionID string, err error) api.Event {
	ev := api.Event{
		Type:      api.EventError,
		SessionID: sessionID,
		Error:     err.Error(),
	}
	if e, ok := types.AsError(err); ok {
		ev.Code = string(e.Code)
		ev.Error = e.Message
	}
	return ev
}

func lastNode(s *workflow.WorkflowState) string {
	if n := len(s.Metadata.NodeHistory); n > 0 {
		return s.Metadata.NodeHistory[n-1]
	}
	return ""
}
