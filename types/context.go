package types

import "context"

// ctxKey 私有键类型，避免与其他包冲突
type ctxKey uint8

const (
	traceIDKey ctxKey = iota
	requestIDKey
	sessionIDKey
)

func withString(ctx context.Context, k ctxKey, v string) context.Context {
	return context.WithValue(ctx, k, v)
}

// stringFrom 空字符串视为未设置
func stringFrom(ctx context.Context, k ctxKey) (string, bool) {
	v, _ := ctx.Value(k).(string)
	return v, v != ""
}

// WithTraceID 由 OTel 中间件写入，生成请求以 X-Trace-ID 透传给上游
func WithTraceID(ctx context.Context, id string) context.Context {
	return withString(ctx, traceIDKey, id)
}

func TraceID(ctx context.Context) (string, bool) { return stringFrom(ctx, traceIDKey) }

// WithRequestID 由 RequestID 中间件写入，并回显在响应体中
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

func RequestID(ctx context.Context) (string, bool) { return stringFrom(ctx, requestIDKey) }

// WithSessionID 标记当前处理的会话；生成请求把它作为终端用户标识
func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, sessionIDKey, id)
}

func SessionID(ctx context.Context) (string, bool) { return stringFrom(ctx, sessionIDKey) }
