// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package rag 提供概念增强检索的各个构件：向量相似度检索、概念抽取、
概念图遍历、图路径打分、排名融合与答案一致性检查。工作流编排位于
workflow 包，本包只负责单一能力的实现与其外部客户端。

# 核心接口/类型

  - VectorStore / Searcher：向量存储与"嵌入 + 检索"组合（SimilaritySearcher）
  - ConceptExtractor：概念抽取（HTTPConceptExtractor / CachedConceptExtractor）
  - GraphClient：概念图访问（MemoryGraph / Neo4jGraph）
  - RankFuser：多列表融合（RRFFusion / TopKFusion）
  - GraphPathScorer：概念到 chunk 的跳数打分
  - ConsistencyChecker：问题概念与答案概念的可达性检查

# 主要能力

  - 向量存储后端：InMemory（开发/测试）、pgvector（gorm + pgvector-go）
  - 概念图后端：MemoryGraph、Neo4j（neo4j-go-driver v5）
  - 概念缓存：Redis（internal/cache），singleflight 合并并发请求
  - 路径渲染：[概念]--[REL]--[Chunk] 形式的来源说明
  - 融合：加权 RRF（k=60）与可复现的 Top-K 抽样
*/
package rag
