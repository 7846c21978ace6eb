package api

import (
	"time"

	"github.com/BaSui01/genflow/workflow"
)

// =============================================================================
// 工作流请求类型
// =============================================================================

// GenerateRequest 启动一次生成运行
// @Description 生成请求结构
type GenerateRequest struct {
	// 用户提示词；为空时工作流照常运行并请用户补充需求
	Prompt string `json:"prompt" example:"Write a short report on solar adoption"`
	// 运行选项（模型、温度、审批等）
	Inputs workflow.Inputs `json:"inputs,omitempty"`
}

// ResolveApprovalRequest 对审批请求作出决定
// @Description 审批决定
type ResolveApprovalRequest struct {
	// 是否批准
	Approved bool `json:"approved"`
	// 审批备注
	Comment string `json:"comment,omitempty" example:"looks good"`
}

// Stream actions accepted as the first WebSocket message.
const (
	ActionGenerate = "generate"
	ActionResume   = "resume"
)

// StreamRequest 是 WebSocket 连接上的首条客户端消息
type StreamRequest struct {
	Action string          `json:"action"`
	Prompt string          `json:"prompt,omitempty"`
	Inputs workflow.Inputs `json:"inputs,omitempty"`
}

// =============================================================================
// 流式事件类型
// =============================================================================

// EventType 流式事件类型
type EventType string

const (
	EventConnected EventType = "connected"
	EventStatus    EventType = "status"
	EventState     EventType = "state"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Event 是 SSE 与 WebSocket 共用的事件载荷
// @Description 工作流流式事件
type Event struct {
	Type       EventType               `json:"type"`
	SessionID  string                  `json:"session_id"`
	Status     workflow.Status         `json:"status,omitempty"`
	Node       string                  `json:"node,omitempty"`
	ApprovalID string                  `json:"approval_id,omitempty"`
	State      *workflow.WorkflowState `json:"state,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Code       string                  `json:"code,omitempty"`
}

// =============================================================================
// 会话视图
// =============================================================================

// SessionResponse 是会话记录的对外视图，不包含检查点快照
// @Description 会话记录
type SessionResponse struct {
	SessionID string             `json:"session_id"`
	Prompt    string             `json:"prompt"`
	Content   string             `json:"content,omitempty"`
	Document  *workflow.Document `json:"document,omitempty"`
	Charts    []workflow.Chart   `json:"charts,omitempty"`
	Status    workflow.Status    `json:"status"`
	Error     string             `json:"error,omitempty"`
	Metadata  map[string]any     `json:"metadata,omitempty"`
	Resumable bool               `json:"resumable"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewSessionResponse 从存储记录构造会话视图
func NewSessionResponse(rec *workflow.SessionRecord) SessionResponse {
	return SessionResponse{
		SessionID: rec.SessionID,
		Prompt:    rec.Prompt,
		Content:   rec.Content,
		Document:  rec.Document,
		Charts:    rec.Charts,
		Status:    rec.Status,
		Error:     rec.Error,
		Metadata:  rec.Metadata,
		Resumable: len(rec.Snapshot) > 0 && !rec.Status.IsTerminal(),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}
