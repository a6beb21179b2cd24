// Package retry 提供带指数退避与抖动的泛型重试器, 用于包装上游模型调用.
package retry
