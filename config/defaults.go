package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Workflow:  DefaultWorkflowConfig(),
		LLM:       DefaultLLMConfig(),
		Search:    DefaultSearchConfig(),
		Store:     DefaultStoreConfig(),
		Database:  DefaultDatabaseConfig(),
		Redis:     DefaultRedisConfig(),
		Mongo:     DefaultMongoConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 写超时按一次完整的生成流估算
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:           8080,
		MetricsPort:        9091,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       5 * time.Minute,
		ShutdownTimeout:    15 * time.Second,
		RateLimitRPS:       100,
		RateLimitBurst:     200,
		CORSAllowedOrigins: []string{"*"},
	}
}

// DefaultWorkflowConfig 默认不要求审批
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		Model:               "gpt-4o-mini",
		Temperature:         0.7,
		MaxTokens:           2048,
		MaxSearchResults:    5,
		CitationTokenBudget: 2000,
	}
}

func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:   "openai",
		Timeout:    2 * time.Minute,
		MaxRetries: 2,
		Tokenizer:  "tiktoken",
	}
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Provider:       "tavily",
		SearchDepth:    "basic",
		Timeout:        10 * time.Second,
		RateLimitRPS:   5,
		RateLimitBurst: 5,
		CacheTTL:       10 * time.Minute,
	}
}

// DefaultStoreConfig 内存存储，进程重启即丢失
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{Backend: "memory", RedisPrefix: "genflow:"}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379", PoolSize: 10, MinIdleConns: 2}
}

func DefaultMongoConfig() MongoConfig {
	return MongoConfig{URI: "mongodb://localhost:27017", Database: "genflow"}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "genflow",
		Name:            "genflow",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 关闭；启用后按 10% 采样
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "genflow",
		SampleRate:   0.1,
	}
}
