package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/genflow/config"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

func TestConfigFrom(t *testing.T) {
	sc := config.DefaultServerConfig()
	sc.ReadTimeout = 7 * time.Second
	sc.WriteTimeout = 0

	cfg := ConfigFrom("metrics", sc, 9091)
	assert.Equal(t, "metrics", cfg.Name)
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, 7*time.Second, cfg.ReadTimeout)
	assert.Equal(t, DefaultConfig().WriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Zero(t, cfg.MaxConnections)

	sc.MaxConnections = 64
	assert.Equal(t, 64, ConfigFrom("api", sc, 8080).MaxConnections)
}

func TestManager_MaxConnections(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	m := NewManager(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), cfg, zap.NewNop())
	require.NoError(t, m.Start())
	defer func() { _ = m.Shutdown(context.Background()) }()

	// 占住唯一的连接槽
	held, err := net.Dial("tcp", m.Addr())
	require.NoError(t, err)

	client := &http.Client{Timeout: 200 * time.Millisecond}
	_, err = client.Get("http://" + m.Addr() + "/")
	assert.Error(t, err, "second connection waits in accept")

	require.NoError(t, held.Close())
	client.Timeout = 2 * time.Second
	resp, err := client.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}), testConfig(), zaptest.NewLogger(t))
	assert.Equal(t, "127.0.0.1:0", m.Addr())

	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrAlreadyStarted)

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, m.Start(), ErrClosed)
}

func TestManager_RunReturnsNilOnCancel(t *testing.T) {
	m := NewManager(http.NewServeMux(), testConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Addr() != "127.0.0.1:0" }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestManager_RunListenError(t *testing.T) {
	first := NewManager(http.NewServeMux(), testConfig(), zap.NewNop())
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := testConfig()
	cfg.Addr = first.Addr()
	err := NewManager(http.NewServeMux(), cfg, zap.NewNop()).Run(context.Background())
	assert.ErrorContains(t, err, "listen")
}

func TestManager_ShutdownCancelsStreamingRequests(t *testing.T) {
	streaming := make(chan struct{})
	ended := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		close(streaming)
		<-r.Context().Done()
		close(ended)
	})

	m := NewManager(handler, testConfig(), zap.NewNop())
	require.NoError(t, m.Start())

	go func() {
		resp, err := http.Get("http://" + m.Addr() + "/")
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}()
	<-streaming

	start := time.Now()
	require.NoError(t, m.Shutdown(context.Background()))
	<-ended
	assert.Less(t, time.Since(start), time.Second)
}
