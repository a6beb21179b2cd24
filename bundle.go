package conceptrag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/config"
	"github.com/BaSui01/conceptrag/internal/cache"
	"github.com/BaSui01/conceptrag/internal/metrics"
	"github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/llm/client"
	"github.com/BaSui01/conceptrag/llm/embedding"
	"github.com/BaSui01/conceptrag/llm/providers"
	"github.com/BaSui01/conceptrag/llm/providers/openai"
	"github.com/BaSui01/conceptrag/llm/retry"
	"github.com/BaSui01/conceptrag/rag"
	"github.com/BaSui01/conceptrag/workflow"
)

// Components 是组装 Bundle 所需的全部部件.
type Components struct {
	Collaborators workflow.Collaborators
	// Prompts 为 nil 时使用内置模板
	Prompts   *workflow.Prompts
	Settings  workflow.Settings
	MaxVisits int
	// TopKSeed 为 0 时 top-k 抽样不固定种子
	TopKSeed uint64
	// MaxRefs 是请求未指定时的参考文献上限
	MaxRefs int
	Metrics *metrics.Collector
	Logger  *zap.Logger
}

// Bundle 是一组只读共享的客户端及其上的工作流引擎. Swap 时整体替换.
type Bundle struct {
	engine  *workflow.Engine
	fuser   *workflow.ReferenceFuser
	maxRefs int

	pingers map[string]func(context.Context) error
	closers []func(context.Context) error

	// 进行中的请求计数; retired 后归零即关闭 drained
	mu       sync.Mutex
	inflight int
	retired  bool
	drained  chan struct{}
}

// NewBundle builds the workflow engine over the given collaborators.
func NewBundle(c Components) (*Bundle, error) {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var recorder workflow.CollaboratorRecorder
	if c.Metrics != nil {
		recorder = c.Metrics
	}
	pipeline, err := workflow.NewPipeline(c.Collaborators, c.Prompts, c.Settings, recorder, logger)
	if err != nil {
		return nil, err
	}

	engineOpts := []workflow.EngineOption{
		workflow.WithMaxVisits(c.MaxVisits),
		workflow.WithEngineLogger(logger),
	}
	if c.Metrics != nil {
		engineOpts = append(engineOpts, workflow.WithNodeRecorder(c.Metrics))
	}
	maxRefs := c.MaxRefs
	if maxRefs <= 0 {
		maxRefs = 10
	}
	return &Bundle{
		engine:  workflow.NewEngine(pipeline.Nodes(), engineOpts...),
		fuser:   workflow.NewReferenceFuser(c.TopKSeed),
		maxRefs: maxRefs,
		pingers: make(map[string]func(context.Context) error),
		drained: make(chan struct{}),
	}, nil
}

func (b *Bundle) acquire() {
	b.mu.Lock()
	b.inflight++
	b.mu.Unlock()
}

func (b *Bundle) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	if b.retired && b.inflight == 0 {
		b.markDrained()
	}
}

// 调用方持有 mu
func (b *Bundle) markDrained() {
	select {
	case <-b.drained:
	default:
		close(b.drained)
	}
}

// Retire marks the bundle as swapped out. The returned channel is closed once
// no request is running on it; Close is safe after that.
func (b *Bundle) Retire() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retired = true
	if b.inflight == 0 {
		b.markDrained()
	}
	return b.drained
}

// InFlight 返回当前在该 bundle 上运行的请求数
func (b *Bundle) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inflight
}

// Ping runs the named dependency probe; unknown names report nil.
func (b *Bundle) Ping(ctx context.Context, name string) error {
	if fn := b.pingers[name]; fn != nil {
		return fn(ctx)
	}
	return nil
}

// Close releases every client the bundle opened.
func (b *Bundle) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i](ctx))
	}
	b.closers = nil
	return errors.Join(errs...)
}

// =============================================================================
// 🔧 从配置组装
// =============================================================================

// 依赖探针名称, 与 /ready 的检查项一致.
const (
	CheckVectorStore = "vector_store"
	CheckGraph       = "graph"
	CheckCache       = "cache"
)

// BuildBundle opens every client cfg describes. On error the clients opened so
// far are closed.
func BuildBundle(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*Bundle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		pingers = make(map[string]func(context.Context) error)
		closers []func(context.Context) error
		ok      bool
	)
	defer func() {
		if !ok {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i](context.WithoutCancel(ctx))
			}
		}
	}()

	generator, err := newGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	searcher, err := newSearcher(ctx, cfg, pingers, &closers, logger)
	if err != nil {
		return nil, err
	}

	graph, err := newGraph(ctx, cfg.Graph, pingers, &closers, logger)
	if err != nil {
		return nil, err
	}

	concepts, err := newConceptExtractor(cfg, collector, pingers, &closers, logger)
	if err != nil {
		return nil, err
	}

	prompts, err := workflow.LoadPrompts(cfg.Workflow.PromptsFile)
	if err != nil {
		return nil, err
	}

	b, err := NewBundle(Components{
		Collaborators: workflow.Collaborators{
			LLM:      generator,
			Searcher: searcher,
			Graph:    graph,
			Concepts: concepts,
		},
		Prompts:   prompts,
		Settings:  SettingsFromConfig(cfg),
		MaxVisits: cfg.Workflow.MaxNodeVisits,
		TopKSeed:  cfg.Workflow.TopKSeed,
		MaxRefs:   cfg.Workflow.MaxRefs,
		Metrics:   collector,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	b.pingers = pingers
	b.closers = closers
	ok = true

	logger.Info("client bundle built",
		zap.String("vector_backend", cfg.Vector.Backend),
		zap.String("graph_backend", cfg.Graph.Backend),
		zap.Bool("concept_cache", cfg.Concepts.CacheEnabled))
	return b, nil
}

// SettingsFromConfig maps the workflow and graph sections to node settings.
func SettingsFromConfig(cfg *config.Config) workflow.Settings {
	s := workflow.DefaultSettings()
	s.TopK = cfg.Workflow.TopK
	s.MinScore = cfg.Workflow.MinScore
	s.CallTimeout = cfg.Workflow.CallTimeout
	s.MaxConcepts = cfg.Concepts.MaxConcepts
	s.RetrievalMaxHops = cfg.Graph.RetrievalMaxHops
	s.ConsistencyMaxHops = cfg.Graph.ConsistencyMaxHops
	if cfg.Workflow.PivotSource != "" {
		s.PivotSource = cfg.Workflow.PivotSource
	}
	if cfg.Workflow.PivotTarget != "" {
		s.PivotTarget = cfg.Workflow.PivotTarget
	}
	if cfg.Workflow.WarningBanner != "" {
		s.WarningBanner = cfg.Workflow.WarningBanner
	}
	return s
}

func newGenerator(cfg config.LLMConfig, logger *zap.Logger) (llm.Generator, error) {
	provider := openai.NewOpenAIProvider(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		},
		Organization: cfg.Organization,
	}, logger)

	return client.NewTieredClient(provider, client.TieredClientConfig{
		Models: map[llm.Tier]string{
			llm.TierStandard: cfg.Models.Standard,
			llm.TierPro:      cfg.Models.Pro,
			llm.TierLow:      cfg.Models.Low,
		},
		MaxTokens:      cfg.MaxTokens,
		Temperature:    float32(cfg.Temperature),
		Timeout:        cfg.Timeout,
		NoSystemModels: cfg.NoSystemModels,
		Retry:          retry.Policy{MaxRetries: cfg.MaxRetries, Jitter: true},
	}, logger)
}

func newSearcher(ctx context.Context, cfg *config.Config, pingers map[string]func(context.Context) error, closers *[]func(context.Context) error, logger *zap.Logger) (rag.Searcher, error) {
	apiKey := cfg.Embedding.APIKey
	if apiKey == "" {
		apiKey = cfg.LLM.APIKey
	}
	baseURL := cfg.Embedding.BaseURL
	if baseURL == "" {
		baseURL = cfg.LLM.BaseURL
	}
	embedder := embedding.NewOpenAIProvider(embedding.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  apiKey,
			BaseURL: baseURL,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.Embedding.Timeout,
		},
		Dimensions: cfg.Embedding.Dimensions,
	})

	var store rag.VectorStore
	switch cfg.Vector.Backend {
	case "", "memory":
		mem := rag.NewInMemoryVectorStore(logger)
		if cfg.Vector.SnapshotPath != "" {
			n, err := rag.LoadVectorSnapshot(ctx, mem, cfg.Vector.SnapshotPath)
			if err != nil {
				return nil, err
			}
			logger.Info("vector snapshot loaded",
				zap.String("path", cfg.Vector.SnapshotPath),
				zap.Int("documents", n))
		}
		store = mem
	case "pgvector":
		pg, err := rag.OpenPGVectorStore(rag.PGVectorConfig{DSN: cfg.Vector.DSN, Table: cfg.Vector.Table}, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, func(context.Context) error { return pg.Close() })
		pingers[CheckVectorStore] = pg.Ping
		store = pg
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
	return rag.NewSimilaritySearcher(embedder, store, logger), nil
}

func newGraph(ctx context.Context, cfg config.GraphConfig, pingers map[string]func(context.Context) error, closers *[]func(context.Context) error, logger *zap.Logger) (rag.GraphClient, error) {
	switch cfg.Backend {
	case "", "memory":
		g := rag.NewMemoryGraph(logger)
		if cfg.SnapshotPath != "" {
			if err := rag.LoadGraphSnapshot(g, cfg.SnapshotPath); err != nil {
				return nil, err
			}
			logger.Info("graph snapshot loaded", zap.String("path", cfg.SnapshotPath))
		}
		return g, nil
	case "neo4j":
		g, err := rag.NewNeo4jGraph(ctx, rag.Neo4jConfig{
			URI:             cfg.URI,
			Username:        cfg.Username,
			Password:        cfg.Password,
			Database:        cfg.Database,
			DisplayProperty: cfg.DisplayProperty,
		}, logger)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, g.Close)
		pingers[CheckGraph] = g.Ping
		return g, nil
	default:
		return nil, fmt.Errorf("unknown graph backend %q", cfg.Backend)
	}
}

func newConceptExtractor(cfg *config.Config, collector *metrics.Collector, pingers map[string]func(context.Context) error, closers *[]func(context.Context) error, logger *zap.Logger) (rag.ConceptExtractor, error) {
	var extractor rag.ConceptExtractor = rag.NewHTTPConceptExtractor(rag.HTTPConceptExtractorConfig{
		URL:     cfg.Concepts.URL,
		Timeout: cfg.Concepts.Timeout,
	}, logger)
	if !cfg.Concepts.CacheEnabled {
		return extractor, nil
	}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Addr = cfg.Redis.Addr
	cacheCfg.Password = cfg.Redis.Password
	cacheCfg.DB = cfg.Redis.DB
	cacheCfg.KeyPrefix = cfg.Redis.KeyPrefix
	cacheCfg.PoolSize = cfg.Redis.PoolSize
	cacheCfg.TLS = cfg.Redis.TLS
	cacheCfg.DefaultTTL = cfg.Concepts.CacheTTL

	manager, err := cache.NewManager(cacheCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("concept cache: %w", err)
	}
	*closers = append(*closers, func(context.Context) error { return manager.Close() })
	pingers[CheckCache] = manager.Ping

	cached := rag.NewCachedConceptExtractor(extractor, manager, cfg.Concepts.CacheTTL, logger)
	if collector != nil {
		cached = cached.WithObserver(collector)
	}
	return cached, nil
}
