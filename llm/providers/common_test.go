package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/conceptrag/llm"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		code      llm.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", llm.ErrUnauthorized, false},
		{http.StatusForbidden, "denied", llm.ErrForbidden, false},
		{http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{http.StatusBadRequest, "insufficient quota", llm.ErrQuotaExceeded, false},
		{http.StatusBadRequest, "bad field", llm.ErrInvalidRequest, false},
		{http.StatusGatewayTimeout, "timeout", llm.ErrUpstreamTimeout, true},
		{http.StatusBadGateway, "bad gateway", llm.ErrUpstreamError, true},
		{529, "overloaded", llm.ErrModelOverloaded, true},
		{http.StatusInternalServerError, "oops", llm.ErrUpstreamError, true},
		{http.StatusNotFound, "no model", llm.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.msg), func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "openai")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "openai", err.Provider)
			assert.Equal(t, tt.msg, err.Error())
		})
	}
}

func TestMapTransportError(t *testing.T) {
	deadline := MapTransportError(fmt.Errorf("post: %w", context.DeadlineExceeded), "openai")
	assert.Equal(t, llm.ErrUpstreamTimeout, deadline.Code)
	assert.True(t, deadline.Retryable)

	cancelled := MapTransportError(context.Canceled, "openai")
	assert.False(t, cancelled.Retryable)

	other := MapTransportError(errors.New("connection reset"), "openai")
	assert.Equal(t, llm.ErrUpstreamError, other.Code)
	assert.True(t, other.Retryable)
}
