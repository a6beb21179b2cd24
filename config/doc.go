// Package config 提供 conceptrag 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（CONCEPTRAG_ 前缀）的顺序加载，
// Reloader 基于 fsnotify 监听配置文件并在变更后重新加载，
// 由调用方在 OnReload 回调中原子替换客户端。
package config
