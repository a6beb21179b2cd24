package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag"
	"github.com/BaSui01/conceptrag/api/handlers"
	"github.com/BaSui01/conceptrag/config"
	"github.com/BaSui01/conceptrag/internal/metrics"
	"github.com/BaSui01/conceptrag/internal/server"
)

// 旧 bundle 换出后超过该时间仍有请求未完成时记录告警
const defaultCloseGrace = 30 * time.Second

var errNoBundle = errors.New("no client bundle installed")

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 装配 Service、HTTP 路由、指标与配置热重载
type Server struct {
	cfg    *config.Config
	loader *config.Loader
	watch  bool
	logger *zap.Logger

	registry   *prometheus.Registry
	collector  *metrics.Collector
	service    *conceptrag.Service
	closeGrace time.Duration

	// 换出的旧 bundle 延迟关闭
	retiring sync.WaitGroup
}

// NewServer 创建新的服务器实例. watch 为 true 时监听 loader 的配置文件.
func NewServer(cfg *config.Config, loader *config.Loader, watch bool, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		loader:     loader,
		watch:      watch,
		logger:     logger,
		registry:   prometheus.NewRegistry(),
		closeGrace: defaultCloseGrace,
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.Metrics.Enabled {
		s.collector = metrics.NewCollector(cfg.Metrics.Namespace, s.registry, logger)
	}
	return s
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Run 构建客户端、启动 HTTP 服务并阻塞到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	bundle, err := conceptrag.BuildBundle(ctx, s.cfg, s.collector, s.logger)
	if err != nil {
		return fmt.Errorf("build client bundle: %w", err)
	}
	s.service = conceptrag.New(bundle,
		conceptrag.WithLogger(s.logger),
		conceptrag.WithMetrics(s.collector),
	)

	if s.watch {
		reloader := config.NewReloader(s.loader, s.cfg, s.logger)
		reloader.OnReload(func(_, next *config.Config) {
			if err := s.applyConfig(ctx, next); err != nil {
				s.logger.Error("failed to apply reloaded config, keeping previous clients", zap.Error(err))
			}
		})
		watcher, err := reloader.Watch(ctx, config.WithWatcherLogger(s.logger))
		if err != nil {
			s.logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			defer func() { _ = watcher.Stop() }()
		}
	}

	mgr := server.NewManager(s.routes(), server.FromServerConfig(s.cfg.Server), s.logger)
	s.logger.Info("HTTP server starting",
		zap.Int("port", s.cfg.Server.HTTPPort),
		zap.Bool("hot_reload_enabled", s.watch),
	)
	runErr := mgr.Run(ctx)

	s.shutdown()
	return runErr
}

// =============================================================================
// 🌐 路由
// =============================================================================

func (s *Server) routes() http.Handler {
	health := handlers.NewHealthHandler(s.logger)
	for _, name := range []string{conceptrag.CheckVectorStore, conceptrag.CheckGraph, conceptrag.CheckCache} {
		health.RegisterCheck(handlers.NewFuncCheck(name, s.pingFunc(name)))
	}
	generate := handlers.NewGenerateHandler(s.service, s.cfg.Server.MaxBodyBytes, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/generate", generate.HandleGenerate)
	mux.HandleFunc("/health", health.HandleHealth)
	mux.HandleFunc("/healthz", health.HandleHealthz)
	mux.HandleFunc("/ready", health.HandleReady)
	mux.HandleFunc("/version", health.HandleVersion(Version, BuildTime, GitCommit))
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
	}
	if s.collector != nil {
		chain = append(chain, MetricsMiddleware(s.collector))
	}
	return Chain(mux, chain...)
}

// pingFunc 探测当前 bundle, 热重载后自动跟随新 bundle
func (s *Server) pingFunc(name string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		bundle := s.service.Bundle()
		if bundle == nil {
			return errNoBundle
		}
		return bundle.Ping(ctx, name)
	}
}

// =============================================================================
// 🔄 热重载
// =============================================================================

// applyConfig 用新配置重建 bundle 并换入, 旧 bundle 在其请求全部结束后关闭
func (s *Server) applyConfig(ctx context.Context, next *config.Config) error {
	bundle, err := conceptrag.BuildBundle(ctx, next, s.collector, s.logger)
	if err != nil {
		return err
	}
	s.retire(ctx, s.service.Swap(bundle))
	return nil
}

func (s *Server) retire(ctx context.Context, old *conceptrag.Bundle) {
	if old == nil {
		return
	}
	drained := old.Retire()
	s.retiring.Add(1)
	go func() {
		defer s.retiring.Done()
		s.awaitDrain(ctx, old, drained)
		if err := old.Close(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to close retired bundle", zap.Error(err))
		}
	}()
}

// awaitDrain 等待旧 bundle 上的请求结束. ctx 结束后最多再等 ShutdownTimeout.
func (s *Server) awaitDrain(ctx context.Context, old *conceptrag.Bundle, drained <-chan struct{}) {
	var warn <-chan time.Time
	if s.closeGrace > 0 {
		timer := time.NewTimer(s.closeGrace)
		defer timer.Stop()
		warn = timer.C
	}
	for {
		select {
		case <-drained:
			return
		case <-warn:
			warn = nil
			s.logger.Warn("retired bundle still serving requests",
				zap.Int("in_flight", old.InFlight()),
				zap.Duration("waited", s.closeGrace))
		case <-ctx.Done():
			deadline := time.NewTimer(s.cfg.Server.ShutdownTimeout)
			defer deadline.Stop()
			select {
			case <-drained:
			case <-deadline.C:
				s.logger.Warn("closing retired bundle with requests in flight",
					zap.Int("in_flight", old.InFlight()))
			}
			return
		}
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

func (s *Server) shutdown() {
	s.retiring.Wait()
	if s.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if old := s.service.Swap(nil); old != nil {
		if err := old.Close(ctx); err != nil {
			s.logger.Error("client bundle close error", zap.Error(err))
		}
	}
	s.logger.Info("graceful shutdown completed")
}
