// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 提供 AI 内容生成工作流引擎。

# 概述

一次运行按固定状态机依次执行节点：analyze → (search) → (approval) →
generate → format → save。每个节点接收一份状态，返回修改后的克隆，
并最多执行一次外部副作用。Driver 在每个节点之后持久化检查点并向调用方
yield 一份快照，以便流式展示进度。

# 核心接口与类型

  - WorkflowState   — 节点之间传递的状态记录，Status 表示下一个要执行的阶段
  - Nodes           — analyze、search、approval、generate、format、save 六个节点
  - Driver          — 基于 iter.Seq2 的拉取式驱动器，支持 Run 与 Resume
  - ApprovalGate    — 非阻塞的挂起/恢复原语，由调用方解析后再 Resume
  - Store           — 会话与审批请求的持久化契约（实现见 persistence 包）
  - Document / Block — format 节点产出的结构化文档（带 type 判别字段的联合类型）

# 主要能力

  - 搜索降级：搜索失败、超时或 panic 均记录为空结果，不中断运行
  - 引用预算：搜索摘要按 Token 预算截断，URL 永不截断
  - 人工审批：Inputs.RequireApproval 或覆盖已有内容时挂起，Resume 时读取决定
  - 会话互斥：同一会话并发运行立即返回 SESSION_BUSY
  - 可观测性：每个节点一个 OTel span，节点与运行耗时通过 MetricsRecorder 上报

# 状态转换

非法转换（节点返回转换表之外的状态）属于程序缺陷，Driver 记录 error 日志
并以 *DefectError 结束序列，与领域错误（Status = error）严格区分。
*/
package workflow
