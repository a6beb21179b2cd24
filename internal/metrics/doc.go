// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
HTTP、工作流、外部依赖与缓存四个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
工厂注册到调用方给定的 Registerer（默认全局 Registry）。
所有指标按 namespace 隔离。

# 主要能力

  - HTTP 指标：请求总数与耗时，状态码归类为 2xx/3xx/4xx/5xx。
  - 工作流指标：按终态计数的运行次数与耗时、逐节点访问次数、
    耗时与失败次数、输入/输出 Token 用量、注入上下文的来源数。
  - 外部依赖指标：LLM、向量检索、图数据库、概念服务的调用耗时与失败次数。
  - 缓存指标：概念缓存的命中与未命中计数。
*/
package metrics
