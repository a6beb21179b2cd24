// Package tlsutil 提供集中式 TLS 配置，
// 供 LLM、嵌入与概念抽取的 HTTP 客户端以及 Redis 连接使用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
