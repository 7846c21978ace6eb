package types

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorCode 稳定的机器可读错误码，HTTP 响应体与日志都使用它
type ErrorCode string

// 请求与上游
const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"
	ErrAuthentication      ErrorCode = "AUTHENTICATION"
	ErrRateLimit           ErrorCode = "RATE_LIMIT"
	ErrQuotaExceeded       ErrorCode = "QUOTA_EXCEEDED"
	ErrModelNotFound       ErrorCode = "MODEL_NOT_FOUND"
	ErrContextTooLong      ErrorCode = "CONTEXT_TOO_LONG"
	ErrContentFiltered     ErrorCode = "CONTENT_FILTERED"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrTimeout             ErrorCode = "TIMEOUT"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
)

// 工作流
const (
	ErrSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	ErrSessionBusy       ErrorCode = "SESSION_BUSY"
	ErrApprovalNotFound  ErrorCode = "APPROVAL_NOT_FOUND"
	ErrApprovalResolved  ErrorCode = "APPROVAL_ALREADY_RESOLVED"
	ErrApprovalRejected  ErrorCode = "APPROVAL_REJECTED"
	ErrNoSnapshot        ErrorCode = "NO_SNAPSHOT"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrStoreFailure      ErrorCode = "STORE_ERROR"
	ErrTokenizerError    ErrorCode = "TOKENIZER_ERROR"
)

// Error 带错误码的结构化错误。With* 方法原地修改并返回自身，只应在构造时链式调用。
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Error 格式为 "[CODE] message: cause"
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(string(e.Code))
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError 在错误链中查找 *Error
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable 非 *Error 一律不可重试
func IsRetryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Retryable
}

var providerStatusCodes = map[int]ErrorCode{
	http.StatusBadRequest:         ErrInvalidRequest,
	http.StatusUnauthorized:       ErrAuthentication,
	http.StatusForbidden:          ErrAuthentication,
	http.StatusNotFound:           ErrModelNotFound,
	http.StatusRequestTimeout:     ErrUpstreamTimeout,
	http.StatusTooManyRequests:    ErrRateLimit,
	http.StatusServiceUnavailable: ErrServiceUnavailable,
	http.StatusGatewayTimeout:     ErrUpstreamTimeout,
}

// NewProviderError 把检索与生成上游的 HTTP 状态映射为错误码；429 与 5xx 可重试
func NewProviderError(provider string, status int, message string) *Error {
	code, ok := providerStatusCodes[status]
	if !ok {
		code = ErrUpstreamError
	}
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: status,
		Retryable:  status == http.StatusTooManyRequests || status >= 500,
		Provider:   provider,
	}
}
