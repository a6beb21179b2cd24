// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供工作流使用的大语言模型接入层：Provider 抽象、模型档位与
统一错误语义。

# 概述

工作流只依赖 [Generator]：给定消息列表与档位（standard / pro / low），
返回文本与 token 用量。具体实现位于子包：

  - llm/client：TieredClient，把档位映射为模型名并调用 Provider
  - llm/providers/openai：基于 go-openai 的 OpenAI 兼容 Provider
  - llm/embedding：查询嵌入
  - llm/middleware：请求改写链（不支持 system 角色的模型）
  - llm/retry：可重试错误的指数退避
  - llm/tokenizer：tiktoken 计数与回退估算

# 错误

Provider 失败统一包装为 [*Error]，携带 [ErrorCode]、HTTP 状态与
是否可重试，[IsRetryable] 供 retry 包判定。
*/
package llm
