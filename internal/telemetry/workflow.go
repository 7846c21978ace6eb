package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meter 遥测关闭时回落到全局 provider（默认 noop）
func (p *Providers) Meter(name string) metric.Meter {
	if !p.Enabled() {
		return otel.Meter(name)
	}
	return p.mp.Meter(name)
}

// WorkflowMetrics 把工作流观测同时以 OTLP 指标导出，方法集与 workflow.MetricsRecorder 一致，
// 与 Prometheus Collector 并行挂载
type WorkflowMetrics struct {
	nodes          metric.Int64Counter
	nodeLatency    metric.Float64Histogram
	runs           metric.Int64Counter
	runLatency     metric.Float64Histogram
	searchFailures metric.Int64Counter
}

func NewWorkflowMetrics(meter metric.Meter) (*WorkflowMetrics, error) {
	var (
		m    WorkflowMetrics
		errs []error
	)
	add := func(err error) { errs = append(errs, err) }

	var err error
	m.nodes, err = meter.Int64Counter("genflow.workflow.node.executions",
		metric.WithDescription("Node executions by resulting status"))
	add(err)
	m.nodeLatency, err = meter.Float64Histogram("genflow.workflow.node.duration",
		metric.WithDescription("Node execution latency"), metric.WithUnit("s"))
	add(err)
	m.runs, err = meter.Int64Counter("genflow.workflow.runs",
		metric.WithDescription("Run and resume calls by outcome"))
	add(err)
	m.runLatency, err = meter.Float64Histogram("genflow.workflow.run.duration",
		metric.WithDescription("Run and resume latency"), metric.WithUnit("s"))
	add(err)
	m.searchFailures, err = meter.Int64Counter("genflow.search.failures",
		metric.WithDescription("Search calls that degraded to empty results"))
	add(err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &m, nil
}

// 接口不带 ctx；指标不依赖 span 关联，使用 Background 即可
func (m *WorkflowMetrics) RecordWorkflowNode(node, status string, d time.Duration) {
	ctx := context.Background()
	m.nodes.Add(ctx, 1, metric.WithAttributes(attribute.String("node", node), attribute.String("status", status)))
	m.nodeLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("node", node)))
}

func (m *WorkflowMetrics) RecordWorkflowRun(outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(context.Background(), 1, attrs)
	m.runLatency.Record(context.Background(), d.Seconds(), attrs)
}

func (m *WorkflowMetrics) RecordSearchFailure(provider string) {
	m.searchFailures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("provider", provider)))
}
