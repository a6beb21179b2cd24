package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/llm/providers"
	"github.com/BaSui01/conceptrag/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  "test-key",
			BaseURL: srv.URL + "/v1",
			Model:   "gpt-4o-mini",
		},
	}, zap.NewNop())
}

func TestOpenAIProvider_Name(t *testing.T) {
	p := NewOpenAIProvider(providers.OpenAIConfig{}, nil)
	assert.Equal(t, "openai", p.Name())
}

func TestOpenAIProvider_Completion(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"created": 1700000000,
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "Ciao"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages: []types.Message{
			types.NewSystemMessage("sei un assistente"),
			types.NewUserMessage("ciao"),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got.Model, "falls back to the configured model")
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "ciao", got.Messages[1].Content)

	require.Len(t, resp.Choices, 1)
	assert.Equal(t, "Ciao", resp.Choices[0].Message.Content)
	assert.Equal(t, types.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
	assert.Equal(t, "openai", resp.Provider)
}

func TestOpenAIProvider_CompletionErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      llm.ErrorCode
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, llm.ErrRateLimited, true},
		{"unauthorized", http.StatusUnauthorized, llm.ErrUnauthorized, false},
		{"server error", http.StatusInternalServerError, llm.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error": {"message": "upstream says no", "type": "test_error"}}`))
			})

			_, err := p.Completion(context.Background(), &llm.ChatRequest{
				Model:    "gpt-4o-mini",
				Messages: []types.Message{types.NewUserMessage("hi")},
			})
			require.Error(t, err)

			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.code, llmErr.Code)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
			assert.Contains(t, llmErr.Message, "upstream says no")
		})
	}
}

func TestOpenAIProvider_CompletionRequiresModel(t *testing.T) {
	p := NewOpenAIProvider(providers.OpenAIConfig{}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{})

	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrInvalidRequest, llmErr.Code)
}

func TestOpenAIProvider_HealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "data": [{"id": "gpt-4o-mini", "object": "model"}]}`))
	})

	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestOpenAIProvider_HealthCheckUnhealthy(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	status, err := p.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}
