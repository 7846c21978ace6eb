package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // 纯 Go 驱动，注册名 "sqlite"
)

//go:embed migrations
var migrationFiles embed.FS

// DefaultTable 记录已应用版本的表名，与业务表同前缀
const DefaultTable = "genflow_schema_migrations"

// Dialect 数据库方言，同时决定 SQL 文件目录与 database/sql 驱动名
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect 解析方言名称，接受常见别名
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported database dialect: %q", s)
	}
}

// Dir 返回方言在内嵌文件系统中的迁移目录
func (d Dialect) Dir() string {
	return path.Join("migrations", string(d))
}

// Migration 单个迁移版本及其在目标库上的状态
type Migration struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Info 迁移状态摘要
type Info struct {
	Current uint
	Dirty   bool
	Total   int
	Applied int
	Pending int
}

// Config 迁移器配置
type Config struct {
	Dialect Dialect
	// URL 为 database/sql 连接串，格式取决于方言
	URL string
	// Table 默认 DefaultTable
	Table  string
	Logger *zap.Logger
}

// Migrator 版本化 schema 迁移操作
type Migrator interface {
	Up(ctx context.Context) error
	Down(ctx context.Context) error
	DownAll(ctx context.Context) error
	Goto(ctx context.Context, version uint) error
	Force(ctx context.Context, version int) error
	Version(ctx context.Context) (version uint, dirty bool, err error)
	Status(ctx context.Context) ([]Migration, error)
	Info(ctx context.Context) (*Info, error)
	Close() error
}

// SQLMigrator 基于 golang-migrate 与内嵌 SQL 的 Migrator
type SQLMigrator struct {
	cfg     Config
	m       *migrate.Migrate
	catalog []Migration
	logger  *zap.Logger
}

var _ Migrator = (*SQLMigrator)(nil)

// New 打开数据库并加载对应方言的内嵌迁移
func New(cfg Config) (*SQLMigrator, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "migration"), zap.String("dialect", string(cfg.Dialect)))

	catalog, err := loadCatalog(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(string(cfg.Dialect), cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	driver, err := databaseDriver(cfg.Dialect, cfg.Table, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	src, err := iofs.New(migrationFiles, cfg.Dialect.Dir())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(cfg.Dialect), driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = migrateLogger{logger.Sugar()}

	return &SQLMigrator{cfg: cfg, m: m, catalog: catalog, logger: logger}, nil
}

func databaseDriver(d Dialect, table string, db *sql.DB) (database.Driver, error) {
	switch d {
	case DialectPostgres:
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: table})
	case DialectMySQL:
		return mysql.WithInstance(db, &mysql.Config{MigrationsTable: table})
	case DialectSQLite:
		return sqlite.WithInstance(db, &sqlite.Config{MigrationsTable: table})
	default:
		return nil, fmt.Errorf("unsupported database dialect: %q", d)
	}
}

// loadCatalog 按版本顺序列出方言目录下的全部迁移
func loadCatalog(d Dialect) ([]Migration, error) {
	if _, err := ParseDialect(string(d)); err != nil {
		return nil, err
	}
	src, err := iofs.New(migrationFiles, d.Dir())
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}
	defer src.Close()

	var out []Migration
	v, err := src.First()
	for err == nil {
		out = append(out, Migration{Version: v, Name: identifier(src, v)})
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return out, nil
}

func identifier(src source.Driver, v uint) string {
	r, name, err := src.ReadUp(v)
	if err != nil {
		return ""
	}
	_ = r.Close()
	return name
}

// run 执行一次迁移操作；ctx 取消时请求 golang-migrate 在当前迁移完成后停止
func (s *SQLMigrator) run(ctx context.Context, op string, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		select {
		case s.m.GracefulStop <- true:
		default:
		}
		<-done
		return ctx.Err()
	}

	if errors.Is(err, migrate.ErrNoChange) {
		s.logger.Debug("no migration to apply", zap.String("op", op))
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s: %w", op, err)
	}
	s.logger.Info("migration applied", zap.String("op", op))
	return nil
}

func (s *SQLMigrator) Up(ctx context.Context) error {
	return s.run(ctx, "up", s.m.Up)
}

// Down 回滚最近一个版本
func (s *SQLMigrator) Down(ctx context.Context) error {
	return s.run(ctx, "down", func() error { return s.m.Steps(-1) })
}

func (s *SQLMigrator) DownAll(ctx context.Context) error {
	return s.run(ctx, "down all", s.m.Down)
}

func (s *SQLMigrator) Goto(ctx context.Context, version uint) error {
	return s.run(ctx, fmt.Sprintf("goto %d", version), func() error { return s.m.Migrate(version) })
}

// Force 只改写版本记录并清除 dirty 标记，不执行 SQL
func (s *SQLMigrator) Force(ctx context.Context, version int) error {
	return s.run(ctx, fmt.Sprintf("force %d", version), func() error { return s.m.Force(version) })
}

// Version 返回当前版本；尚未迁移时为 0
func (s *SQLMigrator) Version(context.Context) (uint, bool, error) {
	v, dirty, err := s.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return v, dirty, nil
}

func (s *SQLMigrator) Status(ctx context.Context) ([]Migration, error) {
	current, dirty, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(s.catalog))
	for i, m := range s.catalog {
		m.Applied = m.Version <= current
		m.Dirty = dirty && m.Version == current
		out[i] = m
	}
	return out, nil
}

func (s *SQLMigrator) Info(ctx context.Context) (*Info, error) {
	statuses, err := s.Status(ctx)
	if err != nil {
		return nil, err
	}
	info := &Info{Total: len(statuses)}
	info.Current, info.Dirty, _ = s.Version(ctx)
	for _, m := range statuses {
		if m.Applied {
			info.Applied++
		}
	}
	info.Pending = info.Total - info.Applied
	return info, nil
}

// Close 关闭 source 与数据库连接
func (s *SQLMigrator) Close() error {
	srcErr, dbErr := s.m.Close()
	return errors.Join(srcErr, dbErr)
}

// migrateLogger 把 golang-migrate 的输出接到 zap
type migrateLogger struct {
	l *zap.SugaredLogger
}

func (g migrateLogger) Printf(format string, v ...any) {
	g.l.Debugf(strings.TrimRight(format, "\n"), v...)
}

func (g migrateLogger) Verbose() bool { return false }
