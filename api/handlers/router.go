package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BaSui01/genflow/types"
)

// RouterConfig 路由所需的处理器与版本信息
type RouterConfig struct {
	Workflow *WorkflowHandler
	Stream   *StreamSocket
	Health   *HealthHandler

	Version   string
	BuildTime string
	GitCommit string
}

// NewRouter 组装 HTTP 路由，middlewares 按给定顺序包裹所有路由
func NewRouter(cfg RouterConfig, middlewares ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewares...)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Reject(w, r, http.StatusNotFound, types.ErrInvalidRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Reject(w, r, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed")
	})

	if cfg.Health != nil {
		r.Get("/health", cfg.Health.HandleReady)
		r.Get("/healthz", cfg.Health.HandleHealthz)
		r.Get("/ready", cfg.Health.HandleReady)
		r.Get("/readyz", cfg.Health.HandleReady)
		r.Get("/version", cfg.Health.HandleVersion(cfg.Version, cfg.BuildTime, cfg.GitCommit))
	}

	r.Route("/api/v1", func(r chi.Router) {
		if wf := cfg.Workflow; wf != nil {
			r.Get("/sessions/{sessionID}", wf.HandleGetSession)
			r.Post("/sessions/{sessionID}/generate", wf.HandleGenerate)
			r.Post("/sessions/{sessionID}/resume", wf.HandleResume)
			r.Get("/approvals/{approvalID}", wf.HandleGetApproval)
			r.Post("/approvals/{approvalID}/resolve", wf.HandleResolveApproval)
		}
		if cfg.Stream != nil {
			r.Method(http.MethodGet, "/sessions/{sessionID}/ws", cfg.Stream)
		}
	})
	return r
}
