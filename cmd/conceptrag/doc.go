// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 conceptrag 服务端程序入口。

# 概述

cmd/conceptrag 加载 YAML + 环境变量配置（前缀 CONCEPTRAG_），组装检索、
概念图、概念抽取与 LLM 客户端，并通过 HTTP 暴露生成接口。

# 核心类型

  - Server：装配 Service、路由、Prometheus 注册表与热重载
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、version、health
  - 路由：POST /v1/generate，/health、/healthz、/ready、/version、/metrics
  - 中间件链：Recovery、RequestID、SecurityHeaders、OTelTracing、
    RequestLogger、MetricsMiddleware
  - 配置热重载：文件变更后重建客户端 bundle 并原子换入，旧 bundle 延迟关闭
  - 日志：zap，可选 lumberjack 滚动文件
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
