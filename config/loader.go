// =============================================================================
// 📦 conceptrag 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("CONCEPTRAG").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 conceptrag 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// LLM 大语言模型配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Embedding 查询嵌入配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Vector 向量检索配置
	Vector VectorConfig `yaml:"vector" env:"VECTOR"`

	// Graph 概念图配置
	Graph GraphConfig `yaml:"graph" env:"GRAPH"`

	// Concepts 概念抽取服务配置
	Concepts ConceptsConfig `yaml:"concepts" env:"CONCEPTS"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Workflow 工作流配置
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Metrics Prometheus 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 请求体上限（字节）
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
	// 滚动文件输出, Path 为空时关闭
	File LogFileConfig `yaml:"file" env:"FILE"`
}

// LogFileConfig 滚动日志文件配置 (lumberjack)
type LogFileConfig struct {
	Path       string `yaml:"path" env:"PATH"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// OpenAI 兼容网关地址（可选）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// Organization（可选）
	Organization string `yaml:"organization" env:"ORGANIZATION"`
	// 档位到模型名的映射
	Models ModelTiers `yaml:"models" env:"MODELS"`
	// 不接受 system 角色的模型
	NoSystemModels []string `yaml:"no_system_models" env:"NO_SYSTEM_MODELS"`
	// 最大输出 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 最大重试次数（0 表示不重试）
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
}

// ModelTiers 档位模型名
type ModelTiers struct {
	Standard string `yaml:"standard" env:"STANDARD"`
	Pro      string `yaml:"pro" env:"PRO"`
	Low      string `yaml:"low" env:"LOW"`
}

// EmbeddingConfig 查询嵌入配置
type EmbeddingConfig struct {
	// 为空时复用 llm.base_url / llm.api_key
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// VectorConfig 向量检索配置
type VectorConfig struct {
	// 后端: memory, pgvector
	Backend string `yaml:"backend" env:"BACKEND"`
	// PostgreSQL 连接串 (pgvector)
	DSN string `yaml:"dsn" env:"DSN"`
	// 向量表名
	Table string `yaml:"table" env:"TABLE"`
	// memory 后端启动时加载的 JSON 快照, 为空则从空索引开始
	SnapshotPath string `yaml:"snapshot_path" env:"SNAPSHOT_PATH"`
}

// GraphConfig 概念图配置
type GraphConfig struct {
	// 后端: memory, neo4j
	Backend  string `yaml:"backend" env:"BACKEND"`
	URI      string `yaml:"uri" env:"URI"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
	Database string `yaml:"database" env:"DATABASE"`
	// 概念节点显示名属性
	DisplayProperty string `yaml:"display_property" env:"DISPLAY_PROPERTY"`
	// 上下文检索的最大跳数
	RetrievalMaxHops int `yaml:"retrieval_max_hops" env:"RETRIEVAL_MAX_HOPS"`
	// 一致性检查的最大跳数
	ConsistencyMaxHops int `yaml:"consistency_max_hops" env:"CONSISTENCY_MAX_HOPS"`
	// memory 后端启动时加载的 JSON 快照
	SnapshotPath string `yaml:"snapshot_path" env:"SNAPSHOT_PATH"`
}

// ConceptsConfig 概念抽取服务配置
type ConceptsConfig struct {
	// 服务地址
	URL string `yaml:"url" env:"URL"`
	// 单次抽取的最大概念数
	MaxConcepts int `yaml:"max_concepts" env:"MAX_CONCEPTS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 是否启用 Redis 缓存
	CacheEnabled bool `yaml:"cache_enabled" env:"CACHE_ENABLED"`
	// 缓存过期时间
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 启用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// WorkflowConfig 工作流配置
type WorkflowConfig struct {
	// 向量检索返回的文档数
	TopK int `yaml:"top_k" env:"TOP_K"`
	// 向量检索的最低相似度
	MinScore float64 `yaml:"min_score" env:"MIN_SCORE"`
	// 单个节点的最大访问次数
	MaxNodeVisits int `yaml:"max_node_visits" env:"MAX_NODE_VISITS"`
	// 单次外部调用超时, 0 表示只受请求 context 约束
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	// Top-K 融合的随机种子, 0 表示每次随机
	TopKSeed uint64 `yaml:"topk_seed" env:"TOPK_SEED"`
	// 默认返回的参考文献数
	MaxRefs int `yaml:"max_refs" env:"MAX_REFS"`
	// 预翻译源语言
	PivotSource string `yaml:"pivot_source" env:"PIVOT_SOURCE"`
	// 预翻译目标语言
	PivotTarget string `yaml:"pivot_target" env:"PIVOT_TARGET"`
	// 提示词模板文件（YAML），为空使用内置模板
	PromptsFile string `yaml:"prompts_file" env:"PROMPTS_FILE"`
	// 一致性警告横幅，需包含一个 %d 占位符
	WarningBanner string `yaml:"warning_banner" env:"WARNING_BANNER"`
}

// MetricsConfig Prometheus 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// EnvPrefix 默认环境变量前缀
const EnvPrefix = "CONCEPTRAG"

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  EnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		// 获取环境变量值
		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		// 设置字段值
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	if c.LLM.Models.Standard == "" {
		errs = append(errs, "llm.models.standard is required")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, "llm.max_retries must not be negative")
	}

	switch c.Vector.Backend {
	case "memory":
	case "pgvector":
		if c.Vector.DSN == "" {
			errs = append(errs, "vector.dsn is required for pgvector backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown vector backend %q", c.Vector.Backend))
	}

	switch c.Graph.Backend {
	case "memory":
	case "neo4j":
		if c.Graph.URI == "" {
			errs = append(errs, "graph.uri is required for neo4j backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown graph backend %q", c.Graph.Backend))
	}
	if c.Graph.RetrievalMaxHops <= 0 || c.Graph.ConsistencyMaxHops <= 0 {
		errs = append(errs, "graph max hops must be positive")
	}

	if c.Concepts.MaxConcepts <= 0 {
		errs = append(errs, "concepts.max_concepts must be positive")
	}

	if c.Workflow.TopK <= 0 {
		errs = append(errs, "workflow.top_k must be positive")
	}
	if c.Workflow.MinScore < 0 || c.Workflow.MinScore > 1 {
		errs = append(errs, "workflow.min_score must be between 0 and 1")
	}
	// 生成前后 orchestrator 与概念抽取各执行一次
	if c.Workflow.MaxNodeVisits < 2 {
		errs = append(errs, "workflow.max_node_visits must be at least 2")
	}
	if c.Workflow.MaxRefs < 0 {
		errs = append(errs, "workflow.max_refs must not be negative")
	}
	if c.Workflow.WarningBanner != "" && strings.Count(c.Workflow.WarningBanner, "%d") != 1 {
		errs = append(errs, "workflow.warning_banner must contain exactly one %d")
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
