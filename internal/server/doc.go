// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 http.Server 的生命周期。

genflow 的 API 端口与 /metrics 端口各由一个 Manager 承载，
cmd/genflow 在 errgroup 中调用 Run。关闭开始时请求 ctx 会被取消，
正在推送的 SSE 流和 WebSocket 连接据此退出。
*/
package server
