package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/genflow/types"
)

// 错误响应体只读取前 64 KiB
const maxErrorBody = 64 << 10

// statusOverloaded 部分供应商用来表示模型过载
const statusOverloaded = 529

// JSONRequest 一次 JSON API 调用
type JSONRequest struct {
	Method string
	URL    string
	Header http.Header
	// Body 为 nil 时不发送请求体
	Body any
}

// DoJSON 发送请求并把 2xx 响应体解码到 out。
// 失败统一返回 *types.Error：网络错误可重试，非 2xx 按 MapHTTPError 分类，
// 无法解析的 2xx 响应不可重试。
func DoJSON(ctx context.Context, client *http.Client, provider string, req JSONRequest, out any) error {
	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", provider, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", provider, err)
	}
	for k, vs := range req.Header {
		httpReq.Header[k] = vs
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return TransportError(provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return MapHTTPError(resp.StatusCode, ReadErrorMessage(resp.Body), provider)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return DecodeError(provider, err)
	}
	return nil
}

// MapHTTPError 把上游非 2xx 状态映射为 *types.Error。
// 400 中提到额度的消息归为 ErrQuotaExceeded，529 视为可重试的过载。
func MapHTTPError(status int, msg string, provider string) *types.Error {
	switch {
	case status == http.StatusBadRequest && mentionsQuota(msg):
		return types.NewError(types.ErrQuotaExceeded, msg).
			WithHTTPStatus(status).
			WithProvider(provider)
	case status == statusOverloaded:
		return types.NewError(types.ErrServiceUnavailable, msg).
			WithHTTPStatus(status).
			WithRetryable(true).
			WithProvider(provider)
	default:
		return types.NewProviderError(provider, status, msg)
	}
}

func mentionsQuota(msg string) bool {
	msg = strings.ToLower(msg)
	for _, kw := range []string{"quota", "credit", "limit"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

// TransportError 连接失败或超时，可重试
func TransportError(provider string, err error) *types.Error {
	return types.NewError(types.ErrUpstreamError, "request failed").
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider)
}

func DecodeError(provider string, err error) *types.Error {
	return types.NewError(types.ErrUpstreamError, "malformed response").
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithProvider(provider)
}

// ReadErrorMessage 提取错误响应中的可读消息。
// 依次尝试 OpenAI 风格的 {"error":{"message","type"}}、{"detail"}、{"message"}，
// 都不匹配时返回原文。
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "unreadable error response"
	}

	var parsed struct {
		Error *struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &parsed) == nil {
		switch {
		case parsed.Error != nil && parsed.Error.Message != "":
			if parsed.Error.Type != "" {
				return fmt.Sprintf("%s (type: %s)", parsed.Error.Message, parsed.Error.Type)
			}
			return parsed.Error.Message
		case parsed.Detail != "":
			return parsed.Detail
		case parsed.Message != "":
			return parsed.Message
		}
	}
	return strings.TrimSpace(string(data))
}
