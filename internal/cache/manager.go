package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/config"
	"github.com/BaSui01/genflow/internal/tlsutil"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	ErrClosed    = errors.New("cache manager is closed")
)

func IsCacheMiss(err error) bool { return errors.Is(err, ErrCacheMiss) }

// NewClient 由 redis 配置段创建客户端；会话存储与缓存共享同一个实例
func NewClient(rc config.RedisConfig) *redis.Client {
	opts := &redis.Options{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		PoolSize:     rc.PoolSize,
		MinIdleConns: rc.MinIdleConns,
	}
	if rc.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	return redis.NewClient(opts)
}

// Manager 带前缀与默认 TTL 的 JSON 缓存。客户端由调用方持有，Close 不会关闭它。
type Manager struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	closed atomic.Bool
}

type Option func(*Manager)

// WithPrefix 所有键都加上 prefix
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

// WithDefaultTTL Set 传入 0 时使用；仍为 0 则永不过期
func WithDefaultTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func New(rdb redis.UniversalClient, opts ...Option) *Manager {
	m := &Manager{rdb: rdb, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "cache"), zap.String("prefix", m.prefix))
	return m
}

func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	b, err := m.rdb.Get(ctx, m.prefix+key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		m.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return b, nil
}

func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = m.ttl
	}
	if err := m.rdb.Set(ctx, m.prefix+key, value, ttl).Err(); err != nil {
		m.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// GetJSON 值无法解码时按未命中处理并删除坏值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	b, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		m.logger.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = m.Delete(ctx, key)
		return fmt.Errorf("%w: %s is not valid JSON", ErrCacheMiss, key)
	}
	return nil
}

func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value %s: %w", key, err)
	}
	return m.Set(ctx, key, b, ttl)
}

func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.prefix + k
	}
	return m.rdb.Del(ctx, full...).Err()
}

// Ping 供就绪探针使用
func (m *Manager) Ping(ctx context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return m.rdb.Ping(ctx).Err()
}

// Close 之后所有调用返回 ErrClosed；可重复调用
func (m *Manager) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.logger.Debug("cache closed")
	}
	return nil
}
