package workflow

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/types"
)

type driverOptions struct {
	logger           *zap.Logger
	metrics          MetricsRecorder
	tracer           trace.Tracer
	clock            func() time.Time
	maxResults       int
	counter          types.TokenCounter
	promptBudget     int
	systemPrompt     string
	approveOverwrite bool
	defaults         Inputs
}

// Option configures a Driver.
type Option func(*driverOptions)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *driverOptions) { o.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *driverOptions) { o.metrics = m }
}

// WithTracer sets the tracer used for per-node spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *driverOptions) { o.tracer = t }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *driverOptions) { o.clock = clock }
}

// WithMaxSearchResults caps search results when Inputs.MaxResults is unset.
func WithMaxSearchResults(n int) Option {
	return func(o *driverOptions) { o.maxResults = n }
}

// WithTokenCounter sets the counter used for the citation budget.
func WithTokenCounter(c types.TokenCounter) Option {
	return func(o *driverOptions) { o.counter = c }
}

// WithPromptBudget sets the citation token budget.
func WithPromptBudget(tokens int) Option {
	return func(o *driverOptions) { o.promptBudget = tokens }
}

// WithSystemPrompt replaces the default system prompt.
func WithSystemPrompt(p string) Option {
	return func(o *driverOptions) { o.systemPrompt = p }
}

// WithApproveOverwrite requires approval before regenerating a session that
// already has saved content.
func WithApproveOverwrite(on bool) Option {
	return func(o *driverOptions) { o.approveOverwrite = on }
}

// WithDefaultInputs fills zero fields of the Inputs passed to Run.
func WithDefaultInputs(in Inputs) Option {
	return func(o *driverOptions) { o.defaults = in }
}

func (in Inputs) withDefaults(d Inputs) Inputs {
	if in.Model == "" {
		in.Model = d.Model
	}
	if in.Temperature == 0 {
		in.Temperature = d.Temperature
	}
	if in.MaxTokens == 0 {
		in.MaxTokens = d.MaxTokens
	}
	if in.MaxResults == 0 {
		in.MaxResults = d.MaxResults
	}
	if !in.RequireApproval {
		in.RequireApproval = d.RequireApproval
	}
	if in.ApprovalKind == "" {
		in.ApprovalKind = d.ApprovalKind
	}
	return in
}
