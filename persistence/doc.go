// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package persistence 提供 workflow.Store 的四种实现。

# 概述

  - MemoryStore — 进程内实现，用于测试与单机开发
  - GormStore   — 基于 GORM 的 SQL 实现，表 genflow_sessions 与
    genflow_approval_requests（PostgreSQL / MySQL / SQLite）
  - RedisStore  — 基于 go-redis 的实现，会话与审批请求以 JSON 保存在
    <prefix>session:<id> 与 <prefix>approval:<id>，可选 TTL
  - MongoStore  — 基于 mongo-driver 的实现，集合 genflow_sessions 与
    genflow_approval_requests，version 字段做乐观并发，可选 TTL 索引

所有实现对缺失记录返回 SESSION_NOT_FOUND 或 APPROVAL_NOT_FOUND 错误码，
其他后端故障包装为 STORE_ERROR。storetest 子包提供各实现共用的契约测试。
*/
package persistence
