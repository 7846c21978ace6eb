// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 genflow HTTP API 的请求处理器实现。

# 概述

handlers 包实现工作流运行、审批处理与健康检查端点，
以及统一的响应/错误处理。所有 Handler 均遵循标准 net/http 接口，
由 NewRouter 基于 chi 组装路由。

# 核心类型

  - WorkflowHandler  — 生成、恢复、会话查询与审批处理，运行过程以 SSE 推送
  - StreamSocket     — 同一事件流的 WebSocket 版本
  - HealthHandler    — 服务健康检查（/healthz 存活；/health、/ready 并发执行探针；/version）
  - Response         — 统一 JSON 响应结构（success + data + error + request_id）
  - ErrorBody        — 对外错误字段：code、message、retryable、provider
  - Probe            — 依赖就绪探针，Optional 探针失败只降级（生成服务、检索缓存）

# 主要能力

  - 统一响应：OK / Fail / Reject，Fail 接受任意 error，非 *types.Error 按内部错误处理
  - 请求绑定：Bind 校验 Content-Type，1 MB 上限，拒绝未知字段与尾随数据
  - ErrorCode → HTTP 状态码自动映射（会话不存在 404、会话忙 409 等）
  - 事件流：每个节点后的状态快照作为 state 事件，结束时追加
    complete、error 或等待审批的 status 事件
  - 运行在产出快照前失败（会话忙、无检查点）时返回普通 JSON 错误
*/
package handlers
