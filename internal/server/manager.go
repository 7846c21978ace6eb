package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/BaSui01/genflow/config"
)

var (
	ErrClosed         = errors.New("server is closed")
	ErrAlreadyStarted = errors.New("server already started")
)

// Config 单个监听端口的服务器参数
type Config struct {
	// Name 出现在日志中，区分 API 与 metrics 端口
	Name            string
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
	// MaxConnections 大于 0 时以 netutil.LimitListener 限制并发连接，超出的连接在 Accept 处排队
	MaxConnections int
}

// DefaultConfig WriteTimeout 同时是单条 SSE 流的时长上限
func DefaultConfig() Config {
	return Config{
		Name:            "http",
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
	}
}

// ConfigFrom 以应用配置覆盖默认值，零值字段保持默认
func ConfigFrom(name string, sc config.ServerConfig, port int) Config {
	cfg := DefaultConfig()
	cfg.Name = name
	cfg.Addr = fmt.Sprintf(":%d", port)
	if sc.ReadTimeout > 0 {
		cfg.ReadTimeout = sc.ReadTimeout
	}
	if sc.WriteTimeout > 0 {
		cfg.WriteTimeout = sc.WriteTimeout
	}
	if sc.ShutdownTimeout > 0 {
		cfg.ShutdownTimeout = sc.ShutdownTimeout
	}
	cfg.MaxConnections = sc.MaxConnections
	return cfg
}

// Manager 管理一个 http.Server 的监听、运行与优雅关闭。
//
// 所有请求的 ctx 都派生自一个内部基础 ctx，关闭开始时先取消它，
// 使 SSE 与 WebSocket 这类长连接能及时结束，而不是拖到 ShutdownTimeout。
type Manager struct {
	cfg    Config
	server *http.Server
	logger *zap.Logger

	baseCtx context.Context
	errCh   chan error

	mu       sync.Mutex
	listener net.Listener
	closed   bool
}

func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "server"), zap.String("server", cfg.Name)),
		baseCtx: baseCtx,
		errCh:   make(chan error, 1),
	}
	m.server = &http.Server{
		Addr:           cfg.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return m.baseCtx },
		ErrorLog:       zap.NewStdLog(m.logger),
	}
	m.server.RegisterOnShutdown(cancel)
	return m
}

// Start 绑定端口并在后台开始服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return ErrClosed
	case m.listener != nil:
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", m.cfg.Addr, err)
	}
	if m.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, m.cfg.MaxConnections)
	}
	m.listener = ln
	m.logger.Info("listening", zap.String("addr", ln.Addr().String()), zap.Int("max_connections", m.cfg.MaxConnections))

	go func() {
		err := m.server.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("serve failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}()
	return nil
}

// Run 阻塞直到 ctx 结束或服务异常退出，然后优雅关闭。
// ctx 正常结束时返回 nil。
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-m.errCh:
	}

	// ctx 已取消，关闭使用独立的期限
	if err := m.Shutdown(context.Background()); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

// Shutdown 可重复调用，只有第一次生效
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	err := m.server.Shutdown(ctx)
	if err != nil {
		m.logger.Error("shutdown incomplete", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		return err
	}
	m.logger.Info("stopped", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Addr 启动前返回配置地址，启动后返回实际绑定地址
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.cfg.Addr
}
