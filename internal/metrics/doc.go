// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、LLM、工作流、缓存与数据库五个维度。

# 概述

Collector 通过 promauto 注册全部指标。NewCollector 使用默认
Registry，NewCollectorWith 允许传入独立 Registry（测试常用）。

# 主要能力

  - HTTP 指标：请求总数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - LLM 指标：请求总数、耗时、Token 用量（prompt/completion）。
  - 工作流指标：节点执行次数与耗时（node/status）、运行结局
    （completed/error/suspended/canceled/defect/abandoned）、搜索降级次数。
    Collector 满足 workflow.MetricsRecorder。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
  - 数据库指标：活跃/空闲连接数 Gauge。
*/
package metrics
