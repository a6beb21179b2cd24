// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器. 所有 Record 方法对 nil 接收者安全, 未配置指标时直接跳过.
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 工作流指标
	workflowRequestsTotal *prometheus.CounterVec
	workflowDuration      prometheus.Histogram
	nodeVisitsTotal       *prometheus.CounterVec
	nodeDuration          *prometheus.HistogramVec
	nodeErrorsTotal       *prometheus.CounterVec
	tokensTotal           *prometheus.CounterVec
	referencesUsed        prometheus.Histogram

	// 外部依赖指标
	collaboratorDuration *prometheus.HistogramVec
	collaboratorErrors   *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器. reg 为 nil 时注册到 prometheus.DefaultRegisterer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 工作流指标
	c.workflowRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_requests_total",
			Help:      "Total number of workflow runs by terminal status",
		},
		[]string{"status"},
	)

	c.workflowDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	c.nodeVisitsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_visits_total",
			Help:      "Total number of workflow node visits",
		},
		[]string{"node"},
	)

	c.nodeDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_node_duration_seconds",
			Help:      "Workflow node duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"node"},
	)

	c.nodeErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_node_errors_total",
			Help:      "Total number of failed workflow node visits",
		},
		[]string{"node"},
	)

	c.tokensTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total number of LLM tokens consumed",
		},
		[]string{"direction"}, // direction: input, output
	)

	c.referencesUsed = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_references_used",
			Help:      "Number of sources injected into the generation context",
			Buckets:   prometheus.LinearBuckets(0, 5, 8),
		},
	)

	// 外部依赖指标
	c.collaboratorDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "collaborator_call_duration_seconds",
			Help:      "External collaborator call duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"collaborator", "operation"},
	)

	c.collaboratorErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Total number of failed external collaborator calls",
		},
		[]string{"collaborator", "operation"},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🔀 工作流指标记录
// =============================================================================

// RecordWorkflow 记录一次工作流运行
func (c *Collector) RecordWorkflow(status string, duration time.Duration, inputTokens, outputTokens, usedRefs int) {
	if c == nil {
		return
	}
	c.workflowRequestsTotal.WithLabelValues(status).Inc()
	c.workflowDuration.Observe(duration.Seconds())
	c.tokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	c.tokensTotal.WithLabelValues("output").Add(float64(outputTokens))
	c.referencesUsed.Observe(float64(usedRefs))
}

// RecordNode 记录节点访问
func (c *Collector) RecordNode(node string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.nodeVisitsTotal.WithLabelValues(node).Inc()
	c.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
	if err != nil {
		c.nodeErrorsTotal.WithLabelValues(node).Inc()
	}
}

// =============================================================================
// 🔌 外部依赖指标记录
// =============================================================================

// RecordCollaboratorCall 记录对 LLM、向量库、图数据库或概念服务的调用
func (c *Collector) RecordCollaboratorCall(collaborator, operation string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.collaboratorDuration.WithLabelValues(collaborator, operation).Observe(duration.Seconds())
	if err != nil {
		c.collaboratorErrors.WithLabelValues(collaborator, operation).Inc()
	}
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
