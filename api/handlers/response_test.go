package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/genflow/types"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestJSON_Headers(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusAccepted, []int{1, 2})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `[1,2]`, w.Body.String())
}

func TestOK_CarriesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-9"))
	w := httptest.NewRecorder()

	OK(w, r, map[string]string{"k": "v"})

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-9", resp.RequestID)
	assert.Equal(t, map[string]any{"k": "v"}, resp.Data)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestFail(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		code      types.ErrorCode
		message   string
		retryable bool
	}{
		{
			name:    "typed error uses code mapping",
			err:     types.NewError(types.ErrSessionNotFound, "session s-1 not found"),
			status:  http.StatusNotFound,
			code:    types.ErrSessionNotFound,
			message: "session s-1 not found",
		},
		{
			name:    "explicit status wins",
			err:     types.NewError(types.ErrSessionBusy, "busy").WithHTTPStatus(http.StatusLocked),
			status:  http.StatusLocked,
			code:    types.ErrSessionBusy,
			message: "busy",
		},
		{
			name:    "wrapped typed error",
			err:     fmt.Errorf("load: %w", types.NewError(types.ErrApprovalNotFound, "approval a-1 not found")),
			status:  http.StatusNotFound,
			code:    types.ErrApprovalNotFound,
			message: "approval a-1 not found",
		},
		{
			name:      "retryable upstream failure",
			err:       &types.Error{Code: types.ErrRateLimit, Message: "slow down", Retryable: true, Provider: "openai"},
			status:    http.StatusTooManyRequests,
			code:      types.ErrRateLimit,
			message:   "slow down",
			retryable: true,
		},
		{
			name:    "plain error hides details",
			err:     errors.New("dial tcp 10.0.0.3:5432: connection refused"),
			status:  http.StatusInternalServerError,
			code:    types.ErrInternalError,
			message: "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			Fail(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zap.NewNop())

			assert.Equal(t, tt.status, w.Code)
			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.code), resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, tt.retryable, resp.Error.Retryable)
		})
	}
}

func TestFail_LogLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	Fail(httptest.NewRecorder(), r, types.NewError(types.ErrInvalidRequest, "bad"), logger)
	Fail(httptest.NewRecorder(), r, errors.New("disk full"), logger)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "disk full", entries[1].ContextMap()["error"])
}

func TestReject(t *testing.T) {
	w := httptest.NewRecorder()
	Reject(w, nil, http.StatusMethodNotAllowed, types.ErrInvalidRequest, "method not allowed")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	resp := decodeEnvelope(t, w)
	assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
	assert.Empty(t, resp.RequestID)
}

func TestStatusFor(t *testing.T) {
	tests := map[types.ErrorCode]int{
		types.ErrInvalidRequest:      http.StatusBadRequest,
		types.ErrInvalidTransition:   http.StatusBadRequest,
		types.ErrAuthentication:      http.StatusUnauthorized,
		types.ErrQuotaExceeded:       http.StatusPaymentRequired,
		types.ErrModelNotFound:       http.StatusNotFound,
		types.ErrSessionNotFound:     http.StatusNotFound,
		types.ErrApprovalNotFound:    http.StatusNotFound,
		types.ErrSessionBusy:         http.StatusConflict,
		types.ErrApprovalResolved:    http.StatusConflict,
		types.ErrNoSnapshot:          http.StatusConflict,
		types.ErrContextTooLong:      http.StatusRequestEntityTooLarge,
		types.ErrApprovalRejected:    http.StatusUnprocessableEntity,
		types.ErrContentFiltered:     http.StatusUnprocessableEntity,
		types.ErrRateLimit:           http.StatusTooManyRequests,
		types.ErrUpstreamError:       http.StatusBadGateway,
		types.ErrServiceUnavailable:  http.StatusServiceUnavailable,
		types.ErrProviderUnavailable: http.StatusServiceUnavailable,
		types.ErrTimeout:             http.StatusGatewayTimeout,
		types.ErrUpstreamTimeout:     http.StatusGatewayTimeout,
		types.ErrStoreFailure:        http.StatusInternalServerError,
		"SOMETHING_NEW":              http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}
