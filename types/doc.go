// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 conceptrag 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、rag、workflow、api
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Message / Role：对话消息（聊天历史与 LLM 请求共用）
  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码与 Retryable 标记
  - RequestID / Trace：context 传播辅助函数
*/
package types
