// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的 JSON 结果缓存。

NewClient 按 config.RedisConfig 构建 go-redis 客户端（可选 TLS），会话存储与缓存共用。
Manager 只负责带前缀、默认 TTL 的读写，不持有客户端生命周期；无法解码的缓存值
视为未命中并被删除，调用方只需区分 ErrCacheMiss 与后端故障。
*/
package cache
