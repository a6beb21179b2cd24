// Package tokenizer 提供 token 计数: OpenAI 系列模型使用 tiktoken 精确计数,
// 其他模型回落到字符估算器. 上游响应缺少 usage 字段时, 生成客户端用它补齐 token 用量.
package tokenizer
