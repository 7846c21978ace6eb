// Package telemetry 初始化 OpenTelemetry 的 trace 与 metric provider，
// 通过 OTLP gRPC 导出。关闭时不连接任何外部服务，Tracer 返回全局 noop 实现。
package telemetry
