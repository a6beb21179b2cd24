// 配置热重载: 监听到配置文件变更后重新加载、校验并通知订阅者。
package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ReloadCallback 在新配置生效后调用.
type ReloadCallback func(oldConfig, newConfig *Config)

// Reloader 持有当前配置, 文件变更时通过 Loader 重新加载.
// 加载或校验失败时保留旧配置.
type Reloader struct {
	loader  *Loader
	current atomic.Pointer[Config]

	mu        sync.Mutex
	callbacks []ReloadCallback
	logger    *zap.Logger
}

// NewReloader creates a reloader seeded with the initially loaded config.
func NewReloader(loader *Loader, initial *Config, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reloader{
		loader: loader,
		logger: logger.With(zap.String("component", "config_reloader")),
	}
	r.current.Store(initial)
	return r
}

// Config returns the current config.
func (r *Reloader) Config() *Config { return r.current.Load() }

// OnReload registers a callback invoked after every successful reload.
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Reload loads the config again and, if valid, swaps it in and notifies subscribers.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := r.loader.Load()
	if err != nil {
		r.logger.Warn("config reload rejected, keeping previous config", zap.Error(err))
		return fmt.Errorf("reload config: %w", err)
	}
	if err := next.Validate(); err != nil {
		r.logger.Warn("reloaded config is invalid, keeping previous config", zap.Error(err))
		return fmt.Errorf("reload config: %w", err)
	}

	prev := r.current.Swap(next)
	r.logger.Info("config reloaded", zap.String("path", r.loader.configPath))

	for _, cb := range r.callbacks {
		cb(prev, next)
	}
	return nil
}

// Watch reloads on every create/write/rename of the config file until ctx is done.
func (r *Reloader) Watch(ctx context.Context, opts ...WatcherOption) (*FileWatcher, error) {
	if r.loader.configPath == "" {
		return nil, fmt.Errorf("config reloader: no config path to watch")
	}
	w, err := NewFileWatcher([]string{r.loader.configPath}, opts...)
	if err != nil {
		return nil, err
	}
	w.OnChange(func(evt FileEvent) {
		if evt.Op == FileOpRemove {
			return
		}
		_ = r.Reload()
	})
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}
