// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 并为工作流节点与外部协作者调用提供 span 辅助函数。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
