package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/genflow/types"
)

// Response JSON 接口的统一外层结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorBody 对外暴露的错误字段；Cause 只进日志
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// JSON 写出任意 JSON 值，不包外层结构。编码失败时响应头已经发出，只能放弃。
func JSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK 以 200 返回 data
func OK(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		RequestID: requestID(r),
		Timestamp: time.Now(),
	})
}

// Fail 把 err 写成错误响应。非 *types.Error 一律按内部错误处理，不向客户端泄露原文。
func Fail(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	e, ok := types.AsError(err)
	if !ok {
		e = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
	status := e.HTTPStatus
	if status == 0 {
		status = statusFor(e.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(e.Code)),
			zap.Int("status", status),
			zap.String("message", e.Message),
		}
		if e.Cause != nil {
			fields = append(fields, zap.Error(e.Cause))
		}
		if id := requestID(r); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Debug("request rejected", fields...)
		}
	}

	JSON(w, status, Response{
		Error: &ErrorBody{
			Code:      string(e.Code),
			Message:   e.Message,
			Retryable: e.Retryable,
			Provider:  e.Provider,
		},
		RequestID: requestID(r),
		Timestamp: time.Now(),
	})
}

// Reject 以指定状态码拒绝请求，用于参数校验、路由未命中、限流等不需要记录的场景
func Reject(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string) {
	Fail(w, r, types.NewError(code, message).WithHTTPStatus(status), nil)
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := types.RequestID(r.Context())
	return id
}

// statusFor 错误码的默认 HTTP 状态；*types.Error 显式设置的 HTTPStatus 优先
func statusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest, types.ErrInvalidTransition:
		return http.StatusBadRequest
	case types.ErrAuthentication:
		return http.StatusUnauthorized
	case types.ErrQuotaExceeded:
		return http.StatusPaymentRequired
	case types.ErrModelNotFound, types.ErrSessionNotFound, types.ErrApprovalNotFound:
		return http.StatusNotFound
	case types.ErrSessionBusy, types.ErrApprovalResolved, types.ErrNoSnapshot:
		return http.StatusConflict
	case types.ErrContextTooLong:
		return http.StatusRequestEntityTooLarge
	case types.ErrApprovalRejected, types.ErrContentFiltered:
		return http.StatusUnprocessableEntity
	case types.ErrRateLimit:
		return http.StatusTooManyRequests
	case types.ErrUpstreamError:
		return http.StatusBadGateway
	case types.ErrServiceUnavailable, types.ErrProviderUnavailable:
		return http.StatusServiceUnavailable
	case types.ErrTimeout, types.ErrUpstreamTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
