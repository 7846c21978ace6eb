// 配置文件变更监听器实现。
//
// 轮询配置文件修改时间，变更后重新加载并通知回调。
package config

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher polls a config file and reloads it when it changes. Invalid
// configs are logged and skipped so the running process keeps the last good
// one.
type Watcher struct {
	mu sync.Mutex

	path     string
	interval time.Duration
	loader   *Loader
	logger   *zap.Logger

	lastMod   time.Time
	callbacks []func(*Config)
}

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is checked
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.interval = d }
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithWatcherLoader sets the loader used for reloads
func WithWatcherLoader(l *Loader) WatcherOption {
	return func(w *Watcher) { w.loader = l }
}

// NewWatcher creates a watcher for path
func NewWatcher(path string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		path:     path,
		interval: 2 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.loader == nil {
		w.loader = NewLoader()
	}
	w.loader.WithConfigPath(path)
	w.logger = w.logger.With(zap.String("component", "config_watcher"))

	if info, err := os.Stat(path); err == nil {
		w.lastMod = info.ModTime()
	}
	return w
}

// OnReload registers a callback for successfully reloaded configs
func (w *Watcher) OnReload(cb func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Run polls until ctx is done
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("config watcher started",
		zap.String("path", w.path),
		zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reloads the file if its modification time moved forward. It
// reports whether callbacks ran.
func (w *Watcher) check() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		return false
	}

	w.mu.Lock()
	if !info.ModTime().After(w.lastMod) {
		w.mu.Unlock()
		return false
	}
	w.lastMod = info.ModTime()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	cfg, err := w.loader.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous config",
			zap.String("path", w.path), zap.Error(err))
		return false
	}

	w.logger.Info("config reloaded", zap.String("path", w.path))
	for _, cb := range callbacks {
		cb(cfg)
	}
	return true
}
