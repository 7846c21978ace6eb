package migration

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/genflow/config"
)

// URLFor 把服务配置中的数据库设置转换为迁移用连接串。
// 与运行期 DSN 的差异：MySQL 需要 multiStatements 才能执行多语句迁移文件，
// SQLite 以 rwc 模式打开以便首次迁移时创建文件。
func URLFor(db config.DatabaseConfig) (Dialect, string, error) {
	d, err := ParseDialect(db.Driver)
	if err != nil {
		return "", "", err
	}
	switch d {
	case DialectPostgres:
		if db.SSLMode == "" {
			db.SSLMode = "disable"
		}
		return d, db.DSN(), nil
	case DialectMySQL:
		return d, db.DSN() + "&multiStatements=true", nil
	default:
		if db.Name == "" {
			return "", "", fmt.Errorf("sqlite database name is required")
		}
		name := db.Name
		if !strings.HasPrefix(name, "file:") {
			name = "file:" + name
		}
		return d, name + "?mode=rwc", nil
	}
}

// FromDatabaseConfig 按服务配置创建迁移器
func FromDatabaseConfig(db config.DatabaseConfig, logger *zap.Logger) (*SQLMigrator, error) {
	d, url, err := URLFor(db)
	if err != nil {
		return nil, err
	}
	return New(Config{Dialect: d, URL: url, Logger: logger})
}

// FromURL 使用显式方言与连接串创建迁移器，供命令行 --db-url 使用
func FromURL(dialect, url string, logger *zap.Logger) (*SQLMigrator, error) {
	d, err := ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	return New(Config{Dialect: d, URL: url, Logger: logger})
}
