// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供生成模型接入层：Provider 抽象、带重试的 Generator 适配器。

# 概述

工作流只依赖 [Generator] 这一窄契约（messages 进，文本出）。
[ProviderGenerator] 把任意 [Provider] 适配为 Generator，对可重试错误
（429、5xx）做指数退避，并把所有失败统一为携带 Provider 字段的 *types.Error。

# 子包

  - providers/openaicompat：OpenAI 兼容 HTTP 客户端
  - search：搜索提供方契约、Tavily 客户端、限流与缓存包装
  - retry：指数退避重试器
  - tokenizer：tiktoken 与估算器，用于提示词预算
*/
package llm
