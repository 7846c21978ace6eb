// Package config 提供 genflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → GENFLOW_ 环境变量 的顺序叠加。YAML 解析是严格的，
// 未知键直接报错；环境变量名由 yaml 键推导（server.http_port → GENFLOW_SERVER_HTTP_PORT），
// 经 mapstructure 弱类型解码，列表用逗号分隔。
// Watcher 轮询配置文件并在变更时重新加载，用于运行时调整日志级别。
package config
