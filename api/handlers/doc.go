// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 conceptrag HTTP API 的请求处理器实现。

# 核心类型

  - GenerateHandler：POST /v1/generate，调用 conceptrag.Service
  - HealthHandler：服务健康检查（/health, /healthz, /ready, /version）
  - Response：统一错误响应结构（success + error + timestamp）
  - FuncCheck：以 ping 函数实现的 HealthCheck

# 主要能力

  - 统一响应格式：WriteSuccess / WriteError / WriteJSON
  - 请求验证：DecodeJSONBody（大小限制 + 严格模式）、ValidateContentType
  - ErrorCode → HTTP 状态码映射
  - 请求 ID：读取或生成 X-Request-ID（google/uuid）并写入 context
*/
package handlers
