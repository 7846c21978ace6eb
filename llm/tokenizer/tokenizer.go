package tokenizer

import (
	"github.com/BaSui01/genflow/types"
)

// Tokenizer 是统一的 token 计数接口.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数,
	// 包括每条消息的开销（角色标记、分隔符等）。
	CountMessages(messages []types.Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度.
	MaxTokens() int

	// Name 返回分词器的名称.
	Name() string
}

// ForModel 返回模型对应的分词器: OpenAI 家族模型使用 tiktoken, 其余使用估算器.
func ForModel(model string) Tokenizer {
	if _, ok := lookupEncoding(model); ok {
		return NewTiktokenTokenizer(model)
	}
	return NewEstimatorTokenizer(model, 0)
}
