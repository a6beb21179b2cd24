// =============================================================================
// 📦 conceptrag 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Vector:    DefaultVectorConfig(),
		Graph:     DefaultGraphConfig(),
		Concepts:  DefaultConceptsConfig(),
		Redis:     DefaultRedisConfig(),
		Workflow:  DefaultWorkflowConfig(),
		Metrics:   DefaultMetricsConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    1 << 20,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
		File: LogFileConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Models: ModelTiers{
			Standard: "gpt-4o-mini",
			Pro:      "gpt-4o",
			Low:      "gpt-4o-mini",
		},
		MaxTokens:   2048,
		Temperature: 0,
		Timeout:     2 * time.Minute,
		MaxRetries:  0,
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Model:   "text-embedding-3-small",
		Timeout: 30 * time.Second,
	}
}

// DefaultVectorConfig 返回默认向量检索配置
func DefaultVectorConfig() VectorConfig {
	return VectorConfig{
		Backend: "memory",
		Table:   "chunk_embeddings",
	}
}

// DefaultGraphConfig 返回默认概念图配置
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		Backend:            "memory",
		URI:                "neo4j://localhost:7687",
		Username:           "neo4j",
		DisplayProperty:    "FSN",
		RetrievalMaxHops:   3,
		ConsistencyMaxHops: 5,
	}
}

// DefaultConceptsConfig 返回默认概念抽取配置
func DefaultConceptsConfig() ConceptsConfig {
	return ConceptsConfig{
		URL:         "http://localhost:5000/concepts",
		MaxConcepts: 100,
		Timeout:     30 * time.Second,
		CacheTTL:    24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "conceptrag:",
		PoolSize:  10,
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		TopK:          10,
		MinScore:      0.4,
		MaxNodeVisits: 3,
		CallTimeout:   2 * time.Minute,
		MaxRefs:       10,
		PivotSource:   "Italian",
		PivotTarget:   "English",
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "conceptrag",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "conceptrag",
		SampleRate:   0.1,
	}
}
