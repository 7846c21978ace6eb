package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	llmBuckets      = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60}
	nodeBuckets     = []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60}
	runBuckets      = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	responseBuckets = prometheus.ExponentialBuckets(100, 10, 8)
)

type httpVecs struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	size     *prometheus.HistogramVec
}

type llmVecs struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

type workflowVecs struct {
	nodes          *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	searchFailures *prometheus.CounterVec
}

// Collector 持有 genflow 的全部 Prometheus 指标，满足 workflow.MetricsRecorder
// 以及 HTTP 中间件、检索缓存、连接池各自的窄接口
type Collector struct {
	http     httpVecs
	llm      llmVecs
	workflow workflowVecs

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	dbOpen      *prometheus.GaugeVec
	dbIdle      *prometheus.GaugeVec
}

// builder 为同一命名空间批量创建向量
type builder struct {
	f  promauto.Factory
	ns string
}

func (b builder) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return b.f.NewCounterVec(prometheus.CounterOpts{Namespace: b.ns, Name: name, Help: help}, labels)
}

func (b builder) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return b.f.NewHistogramVec(prometheus.HistogramOpts{Namespace: b.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

func (b builder) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return b.f.NewGaugeVec(prometheus.GaugeOpts{Namespace: b.ns, Name: name, Help: help}, labels)
}

// NewCollector 注册到默认 Registry，同一进程只能调用一次
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 重复注册同名指标会 panic（promauto 语义）
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	b := builder{f: promauto.With(reg), ns: namespace}
	c := &Collector{
		http: httpVecs{
			requests: b.counter("http_requests_total", "HTTP requests by route and status class", "method", "path", "status"),
			duration: b.histogram("http_request_duration_seconds", "HTTP request latency", prometheus.DefBuckets, "method", "path"),
			size:     b.histogram("http_response_size_bytes", "HTTP response body size", responseBuckets, "method", "path"),
		},
		llm: llmVecs{
			requests: b.counter("llm_requests_total", "Generation calls by provider, model and status", "provider", "model", "status"),
			duration: b.histogram("llm_request_duration_seconds", "Generation call latency", llmBuckets, "provider", "model"),
			tokens:   b.counter("llm_tokens_used_total", "Tokens consumed, split into prompt and completion", "provider", "model", "type"),
		},
		workflow: workflowVecs{
			nodes:          b.counter("workflow_nodes_total", "Node executions by resulting status", "node", "status"),
			nodeDuration:   b.histogram("workflow_node_duration_seconds", "Node execution latency", nodeBuckets, "node"),
			runs:           b.counter("workflow_runs_total", "Run and resume calls by outcome", "outcome"),
			runDuration:    b.histogram("workflow_run_duration_seconds", "Run and resume latency", runBuckets, "outcome"),
			searchFailures: b.counter("search_failures_total", "Search calls that degraded to empty results", "provider"),
		},
		cacheHits:   b.counter("cache_hits_total", "Cache hits", "cache_type"),
		cacheMisses: b.counter("cache_misses_total", "Cache misses", "cache_type"),
		dbOpen:      b.gauge("db_connections_open", "Open database connections", "database"),
		dbIdle:      b.gauge("db_connections_idle", "Idle database connections", "database"),
	}
	if logger != nil {
		logger.Debug("metrics registered", zap.String("namespace", namespace))
	}
	return c
}

// RecordHTTPRequest path 应为路由模板，避免高基数
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.http.requests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.http.duration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.http.size.WithLabelValues(method, path).Observe(float64(responseSize))
}

func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.llm.requests.WithLabelValues(provider, model, status).Inc()
	c.llm.duration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llm.tokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llm.tokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordWorkflowNode status 为节点交出后的会话状态
func (c *Collector) RecordWorkflowNode(node, status string, duration time.Duration) {
	c.workflow.nodes.WithLabelValues(node, status).Inc()
	c.workflow.nodeDuration.WithLabelValues(node).Observe(duration.Seconds())
}

func (c *Collector) RecordWorkflowRun(outcome string, duration time.Duration) {
	c.workflow.runs.WithLabelValues(outcome).Inc()
	c.workflow.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (c *Collector) RecordSearchFailure(provider string) {
	c.workflow.searchFailures.WithLabelValues(provider).Inc()
}

func (c *Collector) RecordCacheHit(cacheType string)  { c.cacheHits.WithLabelValues(cacheType).Inc() }
func (c *Collector) RecordCacheMiss(cacheType string) { c.cacheMisses.WithLabelValues(cacheType).Inc() }

func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbOpen.WithLabelValues(database).Set(float64(open))
	c.dbIdle.WithLabelValues(database).Set(float64(idle))
}

// statusClass 把状态码归为 2xx..5xx
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
