// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 embedding 提供文本嵌入（Embedding）接口与 OpenAI 兼容实现，
用于将查询与文档转换为向量以支持语义检索。

# 核心接口

  - Provider：统一嵌入接口，定义 EmbedQuery、EmbedDocuments、Name、Dimensions。
  - OpenAIProvider：基于 go-openai 的 /embeddings 实现，支持任意兼容网关。

向量统一以 []float64 返回，与 rag.VectorStore 的存储精度保持一致。
*/
package embedding
