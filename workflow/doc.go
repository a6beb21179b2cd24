// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package workflow 实现概念增强 RAG 请求的状态机。

# 概述

一次请求对应一个 State，由 Engine 从 Orchestrator 开始逐个执行节点，
直到某个节点路由到 Terminal。节点只读取状态快照，返回 StateUpdate；
Engine 通过 State.Apply 合并更新：token 计数按加法累积，其余字段取最新值，
并校验字段归属（例如只有 HistoryConsolidator 可以清空历史）与状态只设置一次。

# 节点

  - Orchestrator：有用户历史时先做历史合并，否则进入查询增强
  - HistoryConsolidator：将历史与问题合并为独立问题，清空历史后回到 Orchestrator
  - Augmentator：可选的查询扩写
  - EmbeddingRetriever：向量检索；无结果且无附加上下文时以 NO_RETRIEVE 结束
  - ConceptExtractor：按 ExtractionPhase 对问题或答案抽取概念，空结果 premium 重试一次
  - GraphRetriever：概念到内容块的最短路径检索（最小聚合）
  - AnswerGenerator：组装上下文并以 pro 档位生成答案
  - ConsistencyChecker：标记与问题概念不连通的答案概念并追加警告

# 其他

  - 每个节点的访问次数受 WithMaxVisits 约束，超出返回 ErrVisitLimitExceeded
  - ExecutionHistory 记录访问路径、耗时与 token
  - ReferenceFuser 以 RRF 或 Top-K 投票融合两路检索结果
*/
package workflow
