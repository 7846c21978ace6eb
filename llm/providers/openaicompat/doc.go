// Package openaicompat 提供 OpenAI 兼容 Chat Completions 协议的 llm.Provider 实现，
// 可对接 OpenAI、DeepSeek、Qwen 以及自建的 vLLM / Ollama 网关。
package openaicompat
