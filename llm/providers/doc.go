// Package providers 是上游 JSON API 适配器的共用层：DoJSON 发送请求，
// 并把网络错误、非 2xx 状态与解码失败统一映射为 *types.Error。
package providers
