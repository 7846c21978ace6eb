package workflow

import "time"

// MetricsRecorder receives workflow observations. internal/metrics.Collector
// implements it.
type MetricsRecorder interface {
	RecordWorkflowNode(node, status string, duration time.Duration)
	RecordWorkflowRun(outcome string, duration time.Duration)
	RecordSearchFailure(provider string)
}

type noopMetrics struct{}

func (noopMetrics) RecordWorkflowNode(string, string, time.Duration) {}
func (noopMetrics) RecordWorkflowRun(string, time.Duration)          {}
func (noopMetrics) RecordSearchFailure(string)                       {}

// Recorders fans observations out to every recorder, e.g. Prometheus and OTLP side by side.
type Recorders []MetricsRecorder

func (rs Recorders) RecordWorkflowNode(node, status string, d time.Duration) {
	for _, r := range rs {
		r.RecordWorkflowNode(node, status, d)
	}
}

func (rs Recorders) RecordWorkflowRun(outcome string, d time.Duration) {
	for _, r := range rs {
		r.RecordWorkflowRun(outcome, d)
	}
}

func (rs Recorders) RecordSearchFailure(provider string) {
	for _, r := range rs {
		r.RecordSearchFailure(provider)
	}
}
