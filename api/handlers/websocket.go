package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/api"
	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

// StreamSocket 通过 WebSocket 推送工作流事件。客户端连接后先发送一条
// api.StreamRequest，随后每条服务端消息是一个 JSON 编码的 api.Event。
type StreamSocket struct {
	driver         *workflow.Driver
	logger         *zap.Logger
	originPatterns []string
}

// StreamSocketOption 配置 StreamSocket
type StreamSocketOption func(*StreamSocket)

// WithOriginPatterns 允许跨域连接的 Origin 模式
func WithOriginPatterns(patterns ...string) StreamSocketOption {
	return func(s *StreamSocket) {
		s.originPatterns = append(s.originPatterns, patterns...)
	}
}

// NewStreamSocket 创建 WebSocket 流处理器
func NewStreamSocket(driver *workflow.Driver, logger *zap.Logger, opts ...StreamSocketOption) *StreamSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &StreamSocket{
		driver: driver,
		logger: logger.With(zap.String("component", "stream_socket")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP 处理 GET /api/v1/sessions/{sessionID}/ws
func (s *StreamSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" || len(sessionID) > maxSessionIDLength {
		Reject(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "invalid session id")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := types.WithSessionID(r.Context(), sessionID)
	sink := &wsSink{conn: conn}

	var req api.StreamRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		if isDecodeError(err) {
			s.reject(ctx, conn, sink, sessionID, "first message must be a JSON stream request")
		}
		return
	}

	// 之后不再有数据帧；CloseRead 处理 ping/close 控制帧，并在客户端断开时取消 ctx
	ctx = conn.CloseRead(ctx)

	seq, reason := s.sequence(ctx, sessionID, req)
	if seq == nil {
		s.reject(ctx, conn, sink, sessionID, reason)
		return
	}

	if err := sink.Send(ctx, api.Event{Type: api.EventConnected, SessionID: sessionID}); err != nil {
		return
	}

	next, stop := iter.Pull2(seq)
	defer stop()
	if err := relayEvents(ctx, sessionID, next, sink); err != nil {
		s.logger.Debug("websocket stream ended early", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	conn.Close(websocket.StatusNormalClosure, "stream complete")
}

func (s *StreamSocket) sequence(ctx context.Context, sessionID string, req api.StreamRequest) (iter.Seq2[*workflow.WorkflowState, error], string) {
	switch req.Action {
	case api.ActionGenerate:
		return s.driver.Run(ctx, sessionID, req.Prompt, req.Inputs), ""
	case api.ActionResume:
		return s.driver.Resume(ctx, sessionID), ""
	default:
		return nil, fmt.Sprintf("unknown action %q", req.Action)
	}
}

func (s *StreamSocket) reject(ctx context.Context, conn *websocket.Conn, sink eventSink, sessionID, reason string) {
	_ = sink.Send(ctx, api.Event{
		Type:      api.EventError,
		SessionID: sessionID,
		Code:      string(types.ErrInvalidRequest),
		Error:     reason,
	})
	conn.Close(websocket.StatusPolicyViolation, "invalid stream request")
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// wsSink 串行化写操作，WebSocket 连接不支持并发写
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsSink) Send(ctx context.Context, ev api.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := wsjson.Write(ctx, w.conn, ev); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
