// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供 LLM 请求改写器链, 在请求发送到上游模型服务之前
按顺序执行参数清理与转换。

# 核心接口

  - RequestRewriter：请求改写器接口，包含 Rewrite 与 Name 方法。
  - RewriterChain：改写器链，按顺序执行多个 RequestRewriter，任一失败即中断。

# 内置改写器

  - SystemRoleFlattener：对不支持 system 角色的模型，将开头的 system
    消息改写为 user 消息加一条助手确认消息。
*/
package middleware
