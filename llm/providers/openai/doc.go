// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 基于 github.com/sashabaranov/go-openai 提供 OpenAI 及兼容网关的
Provider 适配实现。

# 核心结构体

  - OpenAIProvider：实现 llm.Provider：Chat Completions 与基于 /models 的健康检查

# 错误映射

上游 APIError / RequestError 按 HTTP 状态码经 providers.MapHTTPError 转换，
未拿到响应的错误经 providers.MapTransportError 转换。
*/
package openai
