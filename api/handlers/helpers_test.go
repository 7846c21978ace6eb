package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/genflow/api"
	"github.com/BaSui01/genflow/llm"
	"github.com/BaSui01/genflow/persistence"
	"github.com/BaSui01/genflow/types"
	"github.com/BaSui01/genflow/workflow"
)

// stubProvider 可配置健康状态的 llm.Provider
type stubProvider struct {
	reply     string
	healthErr error
}

func (p *stubProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Model: req.Model,
		Choices: []llm.ChatChoice{{
			Message: types.Message{Role: types.RoleAssistant, Content: p.reply},
		}},
	}, nil
}

func (p *stubProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	if p.healthErr != nil {
		return nil, p.healthErr
	}
	return &llm.HealthStatus{Healthy: true}, nil
}

func (p *stubProvider) Name() string { return "stub" }

func staticGenerator(content string) llm.GeneratorFunc {
	return func(context.Context, []types.Message, llm.GenerateOptions) (string, error) {
		return content, nil
	}
}

// newTestDriver 使用内存存储与固定生成结果构造驱动器，搜索后端为空
func newTestDriver(content string) *workflow.Driver {
	return workflow.NewDriver(persistence.NewMemoryStore(), nil, staticGenerator(content))
}

// readSSE 解析 SSE 响应体中的全部事件，并校验 event 行与载荷类型一致
func readSSE(t *testing.T, body io.Reader) []api.Event {
	t.Helper()
	var (
		events []api.Event
		name   string
	)
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var ev api.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
			require.Equal(t, name, string(ev.Type))
			events = append(events, ev)
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func eventTypes(events []api.Event) []api.EventType {
	out := make([]api.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}
