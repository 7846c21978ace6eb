// Package search 定义搜索提供方契约，并提供 Tavily HTTP 客户端、
// 基于 x/time/rate 的限流包装和基于 Redis 的结果缓存包装。
//
// 搜索是尽力而为的增强：调用方（工作流 search 节点）负责吞掉错误并降级为空结果。
package search
