// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 为 database 会话存储后端打开 GORM 连接并管理连接池。

Open 按 config.DatabaseConfig.Driver 选择 postgres、mysql 或 sqlite
方言；sqlite 使用 modernc 纯 Go 驱动并限制为单连接。PoolManager 在后台
定时探活，把连接数上报给 StatsRecorder（Prometheus collector），
并为 GormStore 的批量写入提供带重试的事务。
*/
package database
