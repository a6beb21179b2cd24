// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供模型服务商适配的公共基础层：共享配置与错误映射。
具体实现位于子包（openai）。

# 核心类型

  - BaseProviderConfig：所有 Provider 共享的基础配置（APIKey、BaseURL、Model、Timeout）
  - OpenAIConfig：OpenAI 兼容服务的配置（含 Organization）

# 核心函数

  - MapHTTPError：将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - MapTransportError：将超时与网络错误映射为可重试的 llm.Error
*/
package providers
