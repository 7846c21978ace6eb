package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/persistence"
	"github.com/BaSui01/genflow/workflow"
)

func probe(name string, err error, optional bool) Probe {
	return Probe{Name: name, Check: func(context.Context) error { return err }, Optional: optional}
}

func ready(t *testing.T, h *HealthHandler) (int, ServiceHealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	var resp ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return w.Code, resp
}

func TestHealthHandler_HandleHealthz(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	// 存活探针不执行依赖检查
	h.Register(probe("store", errors.New("down"), false))

	w := httptest.NewRecorder()
	h.HandleHealthz(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name       string
		probes     []Probe
		wantCode   int
		wantStatus string
	}{
		{"no probes", nil, http.StatusOK, StatusHealthy},
		{"all pass", []Probe{probe("store", nil, false), probe("llm", nil, true)}, http.StatusOK, StatusHealthy},
		{"optional fails", []Probe{probe("store", nil, false), probe("llm", errors.New("timeout"), true)}, http.StatusOK, StatusDegraded},
		{"required fails", []Probe{probe("store", errors.New("refused"), false), probe("llm", nil, true)}, http.StatusServiceUnavailable, StatusUnhealthy},
		{"both fail", []Probe{probe("store", errors.New("refused"), false), probe("llm", errors.New("timeout"), true)}, http.StatusServiceUnavailable, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(nil)
			for _, p := range tt.probes {
				h.Register(p)
			}
			code, resp := ready(t, h)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Len(t, resp.Checks, len(tt.probes))
		})
	}
}

func TestHealthHandler_FailureDetails(t *testing.T) {
	h := NewHealthHandler(nil)
	h.Register(probe("llm", errors.New("upstream 502"), true))

	_, resp := ready(t, h)
	res := resp.Checks["llm"]
	assert.Equal(t, "fail", res.Status)
	assert.True(t, res.Optional)
	assert.Equal(t, "upstream 502", res.Message)
	assert.NotEmpty(t, res.Latency)
}

func TestHealthHandler_RegisterReplacesSameName(t *testing.T) {
	h := NewHealthHandler(nil)
	h.Register(probe("store", errors.New("old"), false))
	h.Register(probe("store", nil, false))

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Checks, 1)
}

func TestHealthHandler_ProbesRunConcurrently(t *testing.T) {
	h := NewHealthHandler(nil)
	var wg sync.WaitGroup
	wg.Add(3)
	for _, name := range []string{"a", "b", "c"} {
		h.Register(Probe{Name: name, Check: func(ctx context.Context) error {
			// 三个探针都开始后才一起返回
			wg.Done()
			wg.Wait()
			return nil
		}})
	}

	done := make(chan int, 1)
	go func() {
		w := httptest.NewRecorder()
		h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
		done <- w.Code
	}()
	select {
	case code := <-done:
		assert.Equal(t, http.StatusOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("probes were run sequentially")
	}
}

func TestHealthHandler_ProbeTimeout(t *testing.T) {
	h := NewHealthHandler(nil)
	h.timeout = 20 * time.Millisecond
	h.Register(Probe{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, resp.Checks["slow"].Message, "deadline")
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	w := httptest.NewRecorder()
	NewHealthHandler(nil).HandleVersion("1.0.0", "2024-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}

// pinglessStore 未实现 Ping 的存储
type pinglessStore struct{ workflow.Store }

func TestStoreProbe(t *testing.T) {
	ctx := context.Background()

	p := StoreProbe(persistence.NewMemoryStore())
	assert.Equal(t, "store", p.Name)
	assert.False(t, p.Optional)
	assert.NoError(t, p.Check(ctx))

	assert.NoError(t, StoreProbe(pinglessStore{}).Check(ctx))
}

func TestGeneratorProbe_Degrades(t *testing.T) {
	gen := llm.NewGenerator(&stubProvider{healthErr: errors.New("upstream down")}, zap.NewNop())

	h := NewHealthHandler(nil)
	h.Register(GeneratorProbe("llm", gen))
	h.Register(StoreProbe(persistence.NewMemoryStore()))

	code, resp := ready(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Equal(t, "fail", resp.Checks["llm"].Status)
	assert.Equal(t, "pass", resp.Checks["store"].Status)
}
