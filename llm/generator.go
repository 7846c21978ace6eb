package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/genflow/llm/retry"
	"github.com/BaSui01/genflow/types"
)

// GenerateOptions 控制单次生成调用.
type GenerateOptions struct {
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Generator 是工作流使用的生成契约: messages 进, 文本出.
type Generator interface {
	Generate(ctx context.Context, messages []types.Message, opts GenerateOptions) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, messages []types.Message, opts GenerateOptions) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, messages []types.Message, opts GenerateOptions) (string, error) {
	return f(ctx, messages, opts)
}

// GenerationMetrics observes completed generation calls.
type GenerationMetrics interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// ProviderGenerator 在 Provider 之上实现 Generator, 对可重试错误做指数退避.
type ProviderGenerator struct {
	provider Provider
	retryer  *retry.Retryer
	defaults GenerateOptions
	timeout  time.Duration
	metrics  GenerationMetrics
	logger   *zap.Logger
}

// GeneratorOption configures a ProviderGenerator.
type GeneratorOption func(*ProviderGenerator)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p retry.Policy) GeneratorOption {
	return func(g *ProviderGenerator) { g.retryer = retry.New(p, g.logger) }
}

// WithDefaults sets the options used when a call leaves a field at zero.
func WithDefaults(opts GenerateOptions) GeneratorOption {
	return func(g *ProviderGenerator) { g.defaults = opts }
}

// WithRequestTimeout bounds each attempt.
func WithRequestTimeout(d time.Duration) GeneratorOption {
	return func(g *ProviderGenerator) { g.timeout = d }
}

// WithGenerationMetrics records each call's latency and token usage.
func WithGenerationMetrics(m GenerationMetrics) GeneratorOption {
	return func(g *ProviderGenerator) { g.metrics = m }
}

// NewGenerator wraps a Provider.
func NewGenerator(p Provider, logger *zap.Logger, opts ...GeneratorOption) *ProviderGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &ProviderGenerator{
		provider: p,
		logger:   logger.With(zap.String("component", "generator"), zap.String("provider", p.Name())),
	}
	g.retryer = retry.New(retry.DefaultPolicy(), g.logger)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate implements Generator.
func (g *ProviderGenerator) Generate(ctx context.Context, messages []types.Message, opts GenerateOptions) (string, error) {
	req := &ChatRequest{
		Model:       firstNonEmpty(opts.Model, g.defaults.Model),
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Timeout:     g.timeout,
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = g.defaults.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = g.defaults.Temperature
	}
	if traceID, ok := types.TraceID(ctx); ok {
		req.TraceID = traceID
	}
	if sessionID, ok := types.SessionID(ctx); ok {
		req.User = sessionID
	}

	start := time.Now()
	resp, err := retry.Do(ctx, g.retryer, func(ctx context.Context) (*ChatResponse, error) {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.provider.Completion(ctx, req)
	})
	if err != nil {
		g.record(req.Model, "error", time.Since(start), types.TokenUsage{})
		return "", g.asProviderError(err)
	}
	g.record(resp.Model, "success", time.Since(start), resp.Usage)

	if len(resp.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "provider returned no choices").
			WithProvider(g.provider.Name())
	}
	content := resp.Choices[0].Message.Content

	g.logger.Debug("generation completed",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.Total()),
		zap.Duration("latency", time.Since(start)))
	return content, nil
}

// HealthCheck reports whether the underlying provider is reachable.
func (g *ProviderGenerator) HealthCheck(ctx context.Context) error {
	status, err := g.provider.HealthCheck(ctx)
	if err != nil {
		return err
	}
	if !status.Healthy {
		return fmt.Errorf("provider %s unhealthy", g.provider.Name())
	}
	return nil
}

// Name returns the provider name.
func (g *ProviderGenerator) Name() string {
	return g.provider.Name()
}

func (g *ProviderGenerator) asProviderError(err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	code := types.ErrUpstreamError
	if errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrUpstreamTimeout
	}
	return types.NewError(code, "generation request failed").
		WithCause(err).
		WithProvider(g.provider.Name())
}

func (g *ProviderGenerator) record(model, status string, d time.Duration, usage types.TokenUsage) {
	if g.metrics == nil {
		return
	}
	if status == "success" && !usage.Reported() {
		g.logger.Debug("provider returned no usage", zap.String("model", model))
	}
	g.metrics.RecordLLMRequest(g.provider.Name(), model, status, d, usage.PromptTokens, usage.CompletionTokens)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
