// Package tlsutil 提供集中式 TLS 配置，
// 生成服务客户端、Tavily 搜索客户端与 Redis 连接共用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
