package config

import (
	"fmt"
	"time"
)

// Config genflow 全部配置。yaml 键名同时决定环境变量名：
// server.http_port ↔ GENFLOW_SERVER_HTTP_PORT。
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	HTTPPort    int           `yaml:"http_port"`
	MetricsPort int           `yaml:"metrics_port"` // 0 关闭 metrics 服务
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout 覆盖整个 SSE 流，需大于一次完整运行
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// 同时保持的连接上限，SSE 与 WebSocket 各占一条；0 不限
	MaxConnections int `yaml:"max_connections"`

	// 按客户端 IP 限流，RateLimitRPS 为 0 时关闭
	RateLimitRPS       float64  `yaml:"rate_limit_rps"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// WorkflowConfig 生成参数默认值与审批策略
type WorkflowConfig struct {
	Model               string  `yaml:"model"`
	Temperature         float64 `yaml:"temperature"`
	MaxTokens           int     `yaml:"max_tokens"`
	MaxSearchResults    int     `yaml:"max_search_results"`
	CitationTokenBudget int     `yaml:"citation_token_budget"`
	// RequireApproval 每次生成前都挂起等待人工审批
	RequireApproval bool `yaml:"require_approval"`
	// ApproveOverwrite 仅在会话已有内容、本次会覆盖时要求审批
	ApproveOverwrite bool `yaml:"approve_overwrite"`
	// SystemPrompt 为空使用内置提示词
	SystemPrompt string `yaml:"system_prompt"`
}

// LLMConfig OpenAI 兼容协议的生成服务
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Tokenizer  string        `yaml:"tokenizer"` // tiktoken | estimator
}

type SearchConfig struct {
	Provider    string        `yaml:"provider"` // tavily | none
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	SearchDepth string        `yaml:"search_depth"` // basic | advanced
	Timeout     time.Duration `yaml:"timeout"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	// CacheTTL 为 0 不缓存；缓存依赖 Redis
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type StoreConfig struct {
	Backend     string        `yaml:"backend"` // memory | database | redis | mongo
	RedisPrefix string        `yaml:"redis_prefix"`
	TTL         time.Duration `yaml:"ttl"` // redis 键过期时间或 mongo TTL 索引，0 永不过期
	// AutoMigrate 启动时对 database 后端执行 schema 迁移
	AutoMigrate bool `yaml:"auto_migrate"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool_size"`
	MinIdleConns int    `yaml:"min_idle_conns"`
	TLS          bool   `yaml:"tls"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres | mysql | sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// Name sqlite 下为文件路径
	Name    string `yaml:"name"`
	SSLMode string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type LogConfig struct {
	Level            string   `yaml:"level"`  // debug | info | warn | error
	Format           string   `yaml:"format"` // json | console
	OutputPaths      []string `yaml:"output_paths"`
	EnableCaller     bool     `yaml:"enable_caller"`
	EnableStacktrace bool     `yaml:"enable_stacktrace"`
}

type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// DSN 按驱动拼接连接串；未知驱动返回空串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
