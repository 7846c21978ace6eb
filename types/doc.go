// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 genflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 workflow、llm、persistence、
api 等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - Message / Role    — 发送给生成模型的对话消息
  - SearchResult      — 搜索提供方返回的单条结果（title、url、snippet、source）
  - TokenCounter      — 提示词预算的计数接口，CounterFunc 为函数适配器
  - TokenUsage        — 提供方返回的用量，Reported/Total 处理缺失字段

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithSessionID
  - 错误工具链：AsError / IsErrorCode / IsRetryable / NewProviderError
*/
package types
