package openaicompat

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/genflow/internal/tlsutil"
	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/llm/providers"
	"github.com/BaSui01/genflow/types"
)

const (
	defaultName           = "openai"
	defaultTimeout        = 60 * time.Second
	defaultChatPath       = "/v1/chat/completions"
	defaultModelsEndpoint = "/v1/models"
)

// Config 零值字段使用上面的默认值
type Config struct {
	ProviderName string // 日志、指标与错误中的 provider 标签
	APIKey       string
	BaseURL      string // 不含路径，例如 https://api.deepseek.com
	DefaultModel string // 请求未指定模型时使用
	Timeout      time.Duration

	EndpointPath   string
	ModelsEndpoint string // 健康检查用
}

// Provider 实现 llm.Provider
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Provider {
	cfg.ProviderName = cmp.Or(cfg.ProviderName, defaultName)
	cfg.Timeout = cmp.Or(cfg.Timeout, defaultTimeout)
	cfg.EndpointPath = cmp.Or(cfg.EndpointPath, defaultChatPath)
	cfg.ModelsEndpoint = cmp.Or(cfg.ModelsEndpoint, defaultModelsEndpoint)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(cfg.Timeout),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) headers(traceID string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.Cfg.APIKey)
	if traceID != "" {
		h.Set("X-Trace-ID", traceID)
	}
	return h
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + path
}

// HealthCheck 列出模型，验证地址与密钥
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	err := providers.DoJSON(ctx, p.Client, p.Name(), providers.JSONRequest{
		Method: http.MethodGet,
		URL:    p.endpoint(p.Cfg.ModelsEndpoint),
		Header: p.headers(""),
	}, nil)
	status := &llm.HealthStatus{Healthy: err == nil, Latency: time.Since(start)}
	if err != nil {
		return status, fmt.Errorf("%s health check: %w", p.Name(), err)
	}
	return status, nil
}

// Completion 非流式调用；模型为空时回落到 Config.DefaultModel
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.Cfg.DefaultModel
	}

	var out chatResponse
	err := providers.DoJSON(ctx, p.Client, p.Name(), providers.JSONRequest{
		Method: http.MethodPost,
		URL:    p.endpoint(p.Cfg.EndpointPath),
		Header: p.headers(req.TraceID),
		Body: chatRequest{
			Model:       model,
			Messages:    toWireMessages(req.Messages),
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			User:        req.User,
		},
	}, &out)
	if err != nil {
		if te, ok := types.AsError(err); ok && te.HTTPStatus >= 400 && te.HTTPStatus < 500 {
			p.Logger.Warn("completion rejected", zap.Int("status", te.HTTPStatus), zap.String("message", te.Message))
		}
		return nil, err
	}
	return out.toLLM(p.Name()), nil
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	User        string        `json:"user,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      wireMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content, Name: m.Name})
	}
	return out
}

func (r chatResponse) toLLM(provider string) *llm.ChatResponse {
	out := &llm.ChatResponse{
		ID:       r.ID,
		Provider: provider,
		Model:    r.Model,
		Choices:  make([]llm.ChatChoice, 0, len(r.Choices)),
	}
	for _, c := range r.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: types.Message{
				Role:    types.Role(c.Message.Role),
				Content: c.Message.Content,
				Name:    c.Message.Name,
			},
		})
	}
	if r.Usage != nil {
		out.Usage = types.TokenUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	if r.Created != 0 {
		out.CreatedAt = time.Unix(r.Created, 0)
	}
	return out
}
