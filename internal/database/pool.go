package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/BaSui01/genflow/llm/retry"
)

// ErrPoolClosed Close 之后的任何操作
var ErrPoolClosed = errors.New("database pool is closed")

// StatsRecorder 接收每次探活后的连接数
type StatsRecorder interface {
	RecordDBConnections(database string, open, idle int)
}

type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// HealthCheckInterval 为 0 时不启动后台探活
	HealthCheckInterval time.Duration
	// TxRetries 事务遇到死锁、序列化冲突或断连时的重试次数
	TxRetries int
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		TxRetries:           3,
	}
}

func (c PoolConfig) Validate() error {
	var errs []error
	if c.MaxOpenConns <= 0 {
		errs = append(errs, errors.New("max_open_conns must be positive"))
	}
	if c.MaxIdleConns <= 0 {
		errs = append(errs, errors.New("max_idle_conns must be positive"))
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		errs = append(errs, errors.New("max_idle_conns must not exceed max_open_conns"))
	}
	if c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		errs = append(errs, errors.New("connection lifetimes must not be negative"))
	}
	if c.TxRetries < 0 {
		errs = append(errs, errors.New("tx_retries must not be negative"))
	}
	return errors.Join(errs...)
}

// PoolOption 连接池可选项
type PoolOption func(*PoolManager)

// WithStatsRecorder name 作为指标的 database 标签，默认使用方言名
func WithStatsRecorder(name string, r StatsRecorder) PoolOption {
	return func(pm *PoolManager) {
		pm.name = name
		pm.recorder = r
	}
}

// PoolManager 配置 sql.DB 连接池，定时探活并提供带重试的事务
type PoolManager struct {
	db       *gorm.DB
	sqlDB    *sql.DB
	cfg      PoolConfig
	name     string
	recorder StatsRecorder
	retryer  *retry.Retryer
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
}

func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger, opts ...PoolOption) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	logger = logger.With(zap.String("component", "db_pool"))
	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.TxRetries
	policy.InitialDelay = 50 * time.Millisecond
	policy.MaxDelay = time.Second
	policy.ShouldRetry = isRetryableError

	pm := &PoolManager{
		db:      db,
		sqlDB:   sqlDB,
		cfg:     cfg,
		name:    db.Dialector.Name(),
		retryer: retry.New(policy, logger),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(pm)
	}
	if cfg.HealthCheckInterval > 0 {
		go pm.monitor()
	}

	logger.Info("database pool ready",
		zap.String("database", pm.name),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)
	return pm, nil
}

func (pm *PoolManager) DB() *gorm.DB { return pm.db }

func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

func (pm *PoolManager) Stats() sql.DBStats {
	return pm.sqlDB.Stats()
}

// Transact 在事务中执行 fn；可重试的数据库错误会让整个事务按退避重来。
// fn 可能被调用多次，不应有事务之外的副作用。
func (pm *PoolManager) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	_, err := retry.Do(ctx, pm.retryer, func(ctx context.Context) (struct{}, error) {
		pm.mu.RLock()
		closed := pm.closed
		pm.mu.RUnlock()
		if closed {
			return struct{}{}, ErrPoolClosed
		}
		return struct{}{}, pm.db.WithContext(ctx).Transaction(fn)
	})
	return err
}

// Close 可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.closed {
		return nil
	}
	pm.closed = true
	close(pm.stop)
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

func (pm *PoolManager) monitor() {
	ticker := time.NewTicker(pm.cfg.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-pm.stop:
			return
		case <-ticker.C:
			pm.checkOnce()
		}
	}
}

// checkOnce 探活成功才上报连接数
func (pm *PoolManager) checkOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pm.Ping(ctx); err != nil {
		pm.logger.Error("database ping failed", zap.Error(err))
		return
	}
	stats := pm.Stats()
	if pm.recorder != nil {
		pm.recorder.RecordDBConnections(pm.name, stats.OpenConnections, stats.Idle)
	}
	pm.logger.Debug("database ping ok",
		zap.Int("open", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int64("wait_count", stats.WaitCount),
	)
}

// 驱动错误文本中表示瞬时冲突或断连的片段（postgres、mysql、sqlite）
var retryableFragments = []string{
	"deadlock",
	"serialization failure",
	"could not serialize",
	"40001",
	"lock wait timeout",
	"lock timeout",
	"database is locked",
	"connection reset",
	"connection refused",
	"broken pipe",
}

func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "bad connection") {
		return true
	}
	for _, frag := range retryableFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}
