package tokenizer

import (
	"unicode"

	"github.com/BaSui01/genflow/types"
)

const (
	// 聊天格式下每条消息的角色与分隔符开销
	messageOverhead = 4
	// 回复引导 <|start|>assistant
	replyPrimer = 3

	defaultContextWindow = 4096

	wideRunesPerToken   = 1.5
	narrowRunesPerToken = 4.0
)

// wideScripts 中的字符通常一到两个字就是一个 token
var wideScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hiragana,
	unicode.Katakana,
	unicode.Hangul,
}

// EstimatorTokenizer 按字符类别估算 token 数，用于没有 BPE 词表的模型
// 以及 tiktoken 不可用时的降级路径。
type EstimatorTokenizer struct {
	model  string
	window int
}

// NewEstimatorTokenizer window <= 0 时使用 4096
func NewEstimatorTokenizer(model string, window int) *EstimatorTokenizer {
	if window <= 0 {
		window = defaultContextWindow
	}
	return &EstimatorTokenizer{model: model, window: window}
}

func (e *EstimatorTokenizer) CountTokens(text string) (int, error) {
	return estimate(text), nil
}

func (e *EstimatorTokenizer) CountMessages(messages []types.Message) (int, error) {
	total := replyPrimer
	for _, msg := range messages {
		total += messageOverhead + estimate(msg.Content)
	}
	return total, nil
}

func (e *EstimatorTokenizer) MaxTokens() int { return e.window }

func (e *EstimatorTokenizer) Name() string { return "estimator" }

// estimate 非空文本至少计 1 个 token
func estimate(text string) int {
	if text == "" {
		return 0
	}
	var wide, narrow int
	for _, r := range text {
		if isWide(r) {
			wide++
		} else {
			narrow++
		}
	}
	return max(1, int(float64(wide)/wideRunesPerToken+float64(narrow)/narrowRunesPerToken))
}

// isWide 包括 CJK 文字以及中文标点与全角符号
func isWide(r rune) bool {
	if r < unicode.MaxLatin1 {
		return false
	}
	if unicode.IsOneOf(wideScripts, r) {
		return true
	}
	return (r >= 0x3000 && r <= 0x303F) || (r >= 0xFF00 && r <= 0xFFEF)
}
