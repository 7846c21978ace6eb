package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.True(t, IsErrorCode(err, ErrUpstreamError))
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, root)
	assert.Equal(t, "[UPSTREAM_ERROR] upstream failed: root", err.Error())
	assert.Equal(t, "[TIMEOUT] slow", NewError(ErrTimeout, "slow").Error())
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrSessionNotFound, "session s1 not found")
	wrapped := fmt.Errorf("load: %w", inner)

	got, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Same(t, inner, got)
	assert.True(t, IsErrorCode(wrapped, ErrSessionNotFound))
	assert.False(t, IsErrorCode(wrapped, ErrSessionBusy))
	assert.False(t, IsErrorCode(errors.New("plain"), ErrSessionNotFound))
	assert.False(t, IsRetryable(errors.New("plain")))

	_, ok = AsError(errors.New("plain"))
	assert.False(t, ok)
}

func TestNewProviderError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, ErrAuthentication, false},
		{http.StatusTooManyRequests, ErrRateLimit, true},
		{http.StatusBadRequest, ErrInvalidRequest, false},
		{http.StatusServiceUnavailable, ErrServiceUnavailable, true},
		{http.StatusBadGateway, ErrUpstreamError, true},
		{http.StatusGatewayTimeout, ErrUpstreamTimeout, true},
		{http.StatusForbidden, ErrAuthentication, false},
		{http.StatusNotFound, ErrModelNotFound, false},
		{0, ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := NewProviderError("tavily", tt.status, "boom")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, "tavily", err.Provider)
		})
	}
}
