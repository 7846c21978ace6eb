// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 genflow 服务端程序入口。

# 概述

cmd/genflow 把配置、会话存储、生成模型、网页检索与 HTTP 层组装为
一个可执行服务，并提供数据库迁移、健康检查和版本查询等子命令。

# 核心类型

  - App         — 持有存储、工作流驱动器与 HTTP/Metrics 两个 server.Manager
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler
  - HTTPMetrics — 按 chi 路由模板记录请求指标的接口

# 主要能力

  - 子命令（cobra）：serve、migrate、version、health
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、Metrics、CORS、RateLimiter（基于 IP）
  - 存储后端：memory、database（GORM + 连接池）、redis、mongo
  - 检索链：Tavily → 令牌桶限流 → Redis 结果缓存
  - 配置热重载：config.Watcher 轮询文件，运行期调整日志级别
  - 优雅关闭：信号取消 ctx → errgroup 内各服务 Shutdown → 释放连接
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
