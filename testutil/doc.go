// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 conceptrag 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext，
    自动注册 Cleanup 防止泄漏
  - 断言工具: AssertMessagesEqual / AssertJSONEqual
  - 数据工具: MustJSON / MustParseJSON / DocIDs / ConceptNames

# 子包

  - testutil/mocks: MockProvider（llm.Provider）、MockGenerator（llm.Generator）、
    MockSearcher（rag.Searcher）、MockConceptExtractor（rag.ConceptExtractor），
    均支持 Builder 模式、错误注入与调用记录
  - testutil/fixtures: 小型医学概念图（MedicalGraph）与向量检索样例
*/
package testutil
