// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，支持键前缀隔离、健康检查
与 JSON 序列化。概念抽取结果缓存（rag.CachedConceptExtractor）构建在
本包之上。

# 核心类型

  - Manager：缓存管理器，持有 Redis 客户端，提供 Get/Set/Delete/Ping
    基础操作以及 GetJSON/SetJSON 便捷序列化方法。
  - Config：缓存配置，包含地址、密码、键前缀、默认 TTL 与健康检查间隔。

# 主要能力

  - 键值读写：支持字符串与 JSON 两种模式的缓存存取。
  - 健康检查：后台定时 Ping 检测，Close 时停止。
  - 错误语义：提供 ErrCacheMiss / ErrClosed 哨兵错误与 IsCacheMiss 判断函数。
*/
package cache
