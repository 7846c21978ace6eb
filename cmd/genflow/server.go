package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/genflow/api/handlers"
	"github.com/BaSui01/genflow/config"
	"github.com/BaSui01/genflow/internal/cache"
	"github.com/BaSui01/genflow/internal/database"
	"github.com/BaSui01/genflow/internal/metrics"
	"github.com/BaSui01/genflow/internal/server"
	"github.com/BaSui01/genflow/internal/telemetry"
	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/llm/providers/openaicompat"
	"github.com/BaSui01/genflow/llm/retry"
	"github.com/BaSui01/genflow/llm/search"
	"github.com/BaSui01/genflow/llm/tokenizer"
	"github.com/BaSui01/genflow/persistence"
	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

// =============================================================================
// 🖥️ App：组装存储、生成、检索与 HTTP 服务
// =============================================================================

// App 持有一次 serve 运行期间的全部组件
type App struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	level      zap.AtomicLevel

	telemetry *telemetry.Providers
	collector *metrics.Collector

	pool   *database.PoolManager
	redis  *redis.Client
	mongo  *mongo.Client
	cache  *cache.Manager
	driver *workflow.Driver

	httpManager    *server.Manager
	metricsManager *server.Manager
	stopLimiter    context.CancelFunc
}

// NewApp 按配置构建所有组件，不启动监听
func NewApp(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel) (*App, error) {
	a := &App{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		level:      level,
	}

	providers, err := telemetry.Init(context.Background(), cfg.Telemetry, logger, telemetry.WithServiceVersion(Version))
	if err != nil {
		// 追踪不可用不阻止启动
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.telemetry = providers
	a.collector = metrics.NewCollector("genflow", logger)

	store, err := a.initStore()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init store: %w", err)
	}

	generator := a.initGenerator()
	searcher := a.initSearcher()

	a.driver = workflow.NewDriver(store, searcher, generator, a.workflowOptions()...)

	router := handlers.NewRouter(handlers.RouterConfig{
		Workflow:  handlers.NewWorkflowHandler(a.driver, logger),
		Stream:    handlers.NewStreamSocket(a.driver, logger, handlers.WithOriginPatterns(originPatterns(cfg.Server.CORSAllowedOrigins)...)),
		Health:    a.initHealth(store, generator),
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	}, a.middlewares()...)

	a.httpManager = server.NewManager(router, server.ConfigFrom("api", cfg.Server, cfg.Server.HTTPPort), logger)

	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		a.metricsManager = server.NewManager(mux, server.ConfigFrom("metrics", cfg.Server, cfg.Server.MetricsPort), logger)
	}

	return a, nil
}

// initStore 根据 store.backend 打开会话存储
func (a *App) initStore() (workflow.Store, error) {
	deps := persistence.Deps{Logger: a.logger}

	switch a.cfg.Store.Backend {
	case "database":
		db, err := database.Open(a.cfg.Database, a.logger)
		if err != nil {
			return nil, err
		}
		pool, err := database.NewPoolManager(db, database.PoolConfigFrom(a.cfg.Database), a.logger,
			database.WithStatsRecorder(a.cfg.Database.Driver, a.collector))
		if err != nil {
			return nil, err
		}
		a.pool = pool
		if a.cfg.Store.AutoMigrate {
			if err := persistence.AutoMigrate(db); err != nil {
				return nil, err
			}
			a.logger.Info("session schema migrated")
		}
		deps.DB = pool.DB()
		deps.Tx = pool.Transact
	case "redis":
		a.redis = cache.NewClient(a.cfg.Redis)
		deps.Redis = a.redis
	case persistence.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		client, err := persistence.ConnectMongo(ctx, a.cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		a.mongo = client
		ms := persistence.NewMongoStore(client.Database(a.cfg.Mongo.Database), a.cfg.Store.TTL, a.logger)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		a.logger.Info("session store ready", zap.String("backend", a.cfg.Store.Backend),
			zap.String("database", a.cfg.Mongo.Database))
		return ms, nil
	}

	store, err := persistence.New(a.cfg.Store.Backend, deps,
		persistence.WithPrefix(a.cfg.Store.RedisPrefix),
		persistence.WithTTL(a.cfg.Store.TTL),
		persistence.WithRedisLogger(a.logger),
	)
	if err != nil {
		return nil, err
	}
	a.logger.Info("session store ready", zap.String("backend", a.cfg.Store.Backend))
	return store, nil
}

// initGenerator 构建 OpenAI 兼容的生成器
func (a *App) initGenerator() llm.Generator {
	wf := a.cfg.Workflow
	provider := openaicompat.New(openaicompat.Config{
		ProviderName: a.cfg.LLM.Provider,
		APIKey:       a.cfg.LLM.APIKey,
		BaseURL:      a.cfg.LLM.BaseURL,
		DefaultModel: wf.Model,
		Timeout:      a.cfg.LLM.Timeout,
	}, a.logger)

	policy := retry.DefaultPolicy()
	policy.MaxRetries = a.cfg.LLM.MaxRetries
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.logger.Warn("retrying generation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	if a.cfg.LLM.APIKey == "" {
		a.logger.Warn("llm.api_key is empty, generation requests will be rejected upstream")
	}

	return llm.NewGenerator(provider, a.logger,
		llm.WithRetryPolicy(policy),
		llm.WithDefaults(llm.GenerateOptions{
			Model:       wf.Model,
			Temperature: float32(wf.Temperature),
			MaxTokens:   wf.MaxTokens,
		}),
		llm.WithRequestTimeout(a.cfg.LLM.Timeout),
		llm.WithGenerationMetrics(a.collector),
	)
}

// initSearcher 构建检索链：Tavily → 限流 → Redis 缓存。
// 未配置 API key 时返回 nil，工作流跳过检索。
func (a *App) initSearcher() search.Provider {
	sc := a.cfg.Search
	if sc.Provider == "none" || sc.APIKey == "" {
		a.logger.Info("web search disabled")
		return nil
	}

	var p search.Provider = search.NewTavily(search.TavilyConfig{
		APIKey:      sc.APIKey,
		BaseURL:     sc.BaseURL,
		SearchDepth: sc.SearchDepth,
		Timeout:     sc.Timeout,
	}, a.logger)

	if sc.RateLimitRPS > 0 {
		p = search.NewRateLimited(p, sc.RateLimitRPS, sc.RateLimitBurst)
	}

	if sc.CacheTTL > 0 && a.cfg.Redis.Addr != "" {
		if a.redis == nil {
			a.redis = cache.NewClient(a.cfg.Redis)
		}
		a.cache = cache.New(a.redis,
			cache.WithPrefix(a.cfg.Store.RedisPrefix+"search:"),
			cache.WithDefaultTTL(sc.CacheTTL),
			cache.WithLogger(a.logger),
		)
		p = search.NewCached(p, a.cache, sc.CacheTTL, a.logger).WithMetrics(a.collector)
	}
	return p
}

// workflowMetrics 遥测开启时 Prometheus 与 OTLP 同时记录
func (a *App) workflowMetrics() workflow.MetricsRecorder {
	if !a.telemetry.Enabled() {
		return a.collector
	}
	otlp, err := telemetry.NewWorkflowMetrics(a.telemetry.Meter("github.com/BaSui01/genflow/workflow"))
	if err != nil {
		a.logger.Warn("otlp workflow metrics unavailable", zap.Error(err))
		return a.collector
	}
	return workflow.Recorders{a.collector, otlp}
}

func (a *App) workflowOptions() []workflow.Option {
	wf := a.cfg.Workflow
	opts := []workflow.Option{
		workflow.WithLogger(a.logger),
		workflow.WithMetrics(a.workflowMetrics()),
		workflow.WithMaxSearchResults(wf.MaxSearchResults),
		workflow.WithPromptBudget(wf.CitationTokenBudget),
		workflow.WithApproveOverwrite(wf.ApproveOverwrite),
		workflow.WithDefaultInputs(workflow.Inputs{RequireApproval: wf.RequireApproval}),
	}
	if wf.SystemPrompt != "" {
		opts = append(opts, workflow.WithSystemPrompt(wf.SystemPrompt))
	}
	if a.telemetry != nil {
		opts = append(opts, workflow.WithTracer(a.telemetry.Tracer("github.com/BaSui01/genflow/workflow")))
	}

	var counter types.TokenCounter
	if a.cfg.LLM.Tokenizer == "estimator" {
		counter = tokenizer.NewCounterFrom(tokenizer.NewEstimatorTokenizer(wf.Model, 0), a.logger)
	} else {
		counter = tokenizer.NewCounter(wf.Model, a.logger)
	}
	return append(opts, workflow.WithTokenCounter(counter))
}

func (a *App) initHealth(store workflow.Store, generator llm.Generator) *handlers.HealthHandler {
	h := handlers.NewHealthHandler(a.logger)
	h.Register(handlers.StoreProbe(store))
	if g, ok := generator.(handlers.GeneratorHealthChecker); ok {
		h.Register(handlers.GeneratorProbe("llm", g))
	}
	if a.pool != nil {
		h.Register(handlers.Probe{Name: "database", Check: a.pool.Ping})
	}
	if a.redis != nil {
		rdb := a.redis
		// 只用于检索缓存时 Redis 不可用不影响核心流程
		h.Register(handlers.Probe{
			Name:     "redis",
			Check:    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			Optional: a.cfg.Store.Backend != "redis",
		})
	}
	return h
}

func (a *App) middlewares() []func(http.Handler) http.Handler {
	sc := a.cfg.Server
	mws := []Middleware{
		Recovery(a.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(a.logger),
		Metrics(a.collector),
		CORS(sc.CORSAllowedOrigins),
	}
	if sc.RateLimitRPS > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		a.stopLimiter = cancel
		mws = append(mws, RateLimiter(ctx, sc.RateLimitRPS, sc.RateLimitBurst, a.logger))
	}
	out := make([]func(http.Handler) http.Handler, len(mws))
	for i, m := range mws {
		out[i] = m
	}
	return out
}

// originPatterns 把 CORS 白名单转换为 websocket 的 Origin 匹配模式
func originPatterns(allowed []string) []string {
	var out []string
	for _, o := range allowed {
		if o == "*" {
			return []string{"*"}
		}
		out = append(out, hostPattern(o))
	}
	return out
}

func hostPattern(origin string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if host, ok := strings.CutPrefix(origin, prefix); ok {
			return host
		}
	}
	return origin
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 HTTP、指标服务与配置监听，阻塞直到 ctx 结束或任一服务失败
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.httpManager.Run(ctx) })
	if a.metricsManager != nil {
		g.Go(func() error { return a.metricsManager.Run(ctx) })
	}

	if a.configPath != "" {
		w := config.NewWatcher(a.configPath,
			config.WithWatcherLogger(a.logger),
		)
		w.OnReload(a.applyReload)
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}

	a.logger.Info("genflow started",
		zap.Int("http_port", a.cfg.Server.HTTPPort),
		zap.Int("metrics_port", a.cfg.Server.MetricsPort),
		zap.Bool("hot_reload", a.configPath != ""),
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyReload 只应用可在运行期调整的配置项，其余需要重启
func (a *App) applyReload(cfg *config.Config) {
	if lvl, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
		a.level.SetLevel(lvl.Level())
		a.logger.Info("log level updated", zap.String("level", cfg.Log.Level))
	}
}

// Close 释放外部连接，可重复调用
func (a *App) Close() {
	if a.stopLimiter != nil {
		a.stopLimiter()
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Error("database pool close failed", zap.Error(err))
		}
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			a.logger.Error("redis close failed", zap.Error(err))
		}
		a.redis = nil
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Error("mongo disconnect failed", zap.Error(err))
		}
		cancel()
		a.mongo = nil
	}
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Error("telemetry shutdown failed", zap.Error(err))
		}
		a.telemetry = nil
	}
}
