package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/genflow/types"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		code      types.ErrorCode
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, "bad key", types.ErrAuthentication, false},
		{"quota", http.StatusBadRequest, "You exceeded your current quota", types.ErrQuotaExceeded, false},
		{"bad request", http.StatusBadRequest, "missing field", types.ErrInvalidRequest, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", types.ErrRateLimit, true},
		{"overloaded", 529, "overloaded", types.ErrServiceUnavailable, true},
		{"bad gateway", http.StatusBadGateway, "oops", types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "p")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, "p", err.Provider)
			assert.Equal(t, tt.status, err.HTTPStatus)
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key (type: auth)",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key","type":"auth"}}`)))
	assert.Equal(t, "nope", ReadErrorMessage(strings.NewReader(`{"detail":"nope"}`)))
	assert.Equal(t, "slow down", ReadErrorMessage(strings.NewReader(`{"message":"slow down"}`)))
	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader("plain text\n")))
}

func TestTransportError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := TransportError("p", cause)
	assert.True(t, err.Retryable)
	assert.ErrorIs(t, err, cause)
	assert.False(t, DecodeError("p", cause).Retryable)
}

func TestDoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
			var in map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"slow down"}`))
		default:
			_, _ = w.Write([]byte(`<html>`))
		}
	}))
	defer server.Close()

	ctx := context.Background()
	call := func(path string, out any) error {
		return DoJSON(ctx, server.Client(), "p", JSONRequest{
			Method: http.MethodPost,
			URL:    server.URL + path,
			Header: http.Header{"Authorization": {"Bearer k"}},
			Body:   map[string]string{"q": "btc"},
		}, out)
	}

	var out map[string]string
	require.NoError(t, call("/ok", &out))
	assert.Equal(t, "btc", out["echo"])

	err := call("/limited", nil)
	assert.True(t, types.IsErrorCode(err, types.ErrRateLimit))
	typed, _ := types.AsError(err)
	assert.Equal(t, "slow down", typed.Message)
	assert.True(t, typed.Retryable)

	err = call("/html", &out)
	typed, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "malformed response", typed.Message)
	assert.False(t, typed.Retryable)

	// 无 out 时忽略响应体
	assert.NoError(t, call("/html", nil))
}

func TestDoJSON_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := DoJSON(context.Background(), http.DefaultClient, "p", JSONRequest{Method: http.MethodGet, URL: url}, nil)
	typed, ok := types.AsError(err)
	require.True(t, ok)
	assert.True(t, typed.Retryable)
	assert.Equal(t, "p", typed.Provider)
}
