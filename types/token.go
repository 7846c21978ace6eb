package types

// TokenCounter 提示词预算使用的计数接口，实现自行处理内部错误
type TokenCounter interface {
	CountTokens(text string) int
}

// CounterFunc 把普通函数适配为 TokenCounter
type CounterFunc func(text string) int

func (f CounterFunc) CountTokens(text string) int { return f(text) }

// TokenUsage 一次生成调用的 token 用量，由提供方在响应中返回
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Reported 提供方是否返回了用量
func (u TokenUsage) Reported() bool {
	return u.PromptTokens > 0 || u.CompletionTokens > 0 || u.TotalTokens > 0
}

// Total 优先使用提供方给出的总数，缺失时按两部分相加
func (u TokenUsage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}
