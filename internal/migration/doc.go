// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 genflow 会话库的版本化 schema。

每种方言的 SQL 文件内嵌在 migrations/<dialect> 下，建出
genflow_sessions 与 genflow_approval_requests 两张表，结构与
persistence.GormStore 的模型保持一致。版本记录写入
genflow_schema_migrations。

SQLMigrator 基于 golang-migrate 执行迁移，日志转发到 zap；
ctx 取消时通过 GracefulStop 在当前文件完成后停止。
CLI 供 `genflow migrate` 子命令渲染结果。
*/
package migration
