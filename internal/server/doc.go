// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 conceptrag HTTP 服务的生命周期管理。

Manager 封装 net/http.Server，负责监听、服务与优雅关闭：

  - Start：非阻塞启动，Addr 返回实际监听地址。
  - Run：阻塞直到 context 结束（通常由 signal.NotifyContext 产生）
    或服务异常退出，随后在 ShutdownTimeout 内排空请求。
  - Errors：异步错误通道。

FromServerConfig 将 config.ServerConfig 转换为服务器配置，
写超时需覆盖一次完整的工作流执行。
*/
package server
