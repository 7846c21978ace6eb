package tokenizer

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Counter adapts a Tokenizer to the error-free types.TokenCounter contract used
// for prompt budgeting. If the primary tokenizer fails (for example tiktoken
// cannot load its BPE ranks) the counter switches to the estimator for good.
type Counter struct {
	primary  Tokenizer
	fallback *EstimatorTokenizer
	degraded atomic.Bool
	logger   *zap.Logger
}

// NewCounter creates a Counter for the given model.
func NewCounter(model string, logger *zap.Logger) *Counter {
	return NewCounterFrom(ForModel(model), logger)
}

// NewCounterFrom wraps an explicit tokenizer.
func NewCounterFrom(primary Tokenizer, logger *zap.Logger) *Counter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counter{
		primary:  primary,
		fallback: NewEstimatorTokenizer("", primary.MaxTokens()),
		logger:   logger.With(zap.String("component", "tokenizer")),
	}
}

// CountTokens implements types.TokenCounter.
func (c *Counter) CountTokens(text string) int {
	if !c.degraded.Load() {
		n, err := c.primary.CountTokens(text)
		if err == nil {
			return n
		}
		if c.degraded.CompareAndSwap(false, true) {
			c.logger.Warn("分词器不可用，降级为估算器",
				zap.String("tokenizer", c.primary.Name()),
				zap.Error(err))
		}
	}
	n, _ := c.fallback.CountTokens(text)
	return n
}

// Degraded reports whether the counter has fallen back to estimation.
func (c *Counter) Degraded() bool {
	return c.degraded.Load()
}
