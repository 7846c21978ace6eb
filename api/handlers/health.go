package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/genflow/persistence"
	"github.com/BaSui01/genflow/workflow"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"

	defaultProbeTimeout = 3 * time.Second
)

// Probe 一个依赖的就绪检查。
// Optional 的依赖失败时服务降级但仍接收流量，例如生成后端暂时不可达时
// 会话查询与审批仍然可用。
type Probe struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// ServiceHealthResponse /health 与 /ready 的响应体
type ServiceHealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status   string `json:"status"` // pass / fail
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
}

type HealthHandler struct {
	logger  *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	probes []Probe
}

func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health")),
		timeout: defaultProbeTimeout,
	}
}

// Register 追加探针；同名探针后注册的覆盖先注册的
func (h *HealthHandler) Register(p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.probes {
		if h.probes[i].Name == p.Name {
			h.probes[i] = p
			return
		}
	}
	h.probes = append(h.probes, p)
}

// HandleHealthz 存活探针，不触达任何依赖
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, ServiceHealthResponse{Status: StatusHealthy, Timestamp: time.Now()})
}

// HandleReady 并发执行所有探针。必需依赖失败返回 503，仅可选依赖失败返回 200 + degraded。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	resp := h.evaluate(r.Context())
	code := http.StatusOK
	if resp.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	JSON(w, code, resp)
}

func (h *HealthHandler) evaluate(ctx context.Context) ServiceHealthResponse {
	h.mu.RLock()
	probes := append([]Probe(nil), h.probes...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(probes))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range probes {
		g.Go(func() error {
			results[i] = h.run(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	resp := ServiceHealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(probes)),
	}
	for i, p := range probes {
		res := results[i]
		resp.Checks[p.Name] = res
		if res.Status == "pass" {
			continue
		}
		if !p.Optional {
			resp.Status = StatusUnhealthy
		} else if resp.Status == StatusHealthy {
			resp.Status = StatusDegraded
		}
	}
	return resp
}

func (h *HealthHandler) run(ctx context.Context, p Probe) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	elapsed := time.Since(start)

	res := CheckResult{Status: "pass", Optional: p.Optional, Latency: elapsed.String()}
	if err != nil {
		res.Status = "fail"
		res.Message = err.Error()
		h.logger.Warn("probe failed",
			zap.String("probe", p.Name),
			zap.Bool("optional", p.Optional),
			zap.Duration("latency", elapsed),
			zap.Error(err))
	}
	return res
}

func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":    version,
		"build_time": buildTime,
		"git_commit": gitCommit,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		OK(w, r, info)
	}
}

// StoreProbe 会话存储为必需依赖；未实现 Ping 的存储视为可用
func StoreProbe(store workflow.Store) Probe {
	return Probe{Name: "store", Check: func(ctx context.Context) error {
		if hc, ok := store.(persistence.HealthChecker); ok {
			return hc.Ping(ctx)
		}
		return nil
	}}
}

// GeneratorHealthChecker 可探活的生成后端
type GeneratorHealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GeneratorProbe 生成后端为可选依赖
func GeneratorProbe(name string, g GeneratorHealthChecker) Probe {
	return Probe{Name: name, Check: g.HealthCheck, Optional: true}
}
