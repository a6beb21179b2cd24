package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/llm/retry"
	"github.com/BaSui01/conceptrag/types"
)

type stubProvider struct {
	mu       sync.Mutex
	requests []*llm.ChatRequest
	respond  func(n int, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

func (s *stubProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	n := len(s.requests)
	s.mu.Unlock()
	return s.respond(n, req)
}

func (s *stubProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (s *stubProvider) Name() string { return "stub" }

func reply(text string, in, out int) *llm.ChatResponse {
	return &llm.ChatResponse{
		Choices: []llm.ChatChoice{{Message: types.NewAssistantMessage(text)}},
		Usage:   llm.ChatUsage{PromptTokens: in, CompletionTokens: out},
	}
}

func testModels() map[llm.Tier]string {
	return map[llm.Tier]string{
		llm.TierStandard: "gpt-4o-mini",
		llm.TierPro:      "gpt-4o",
	}
}

func TestNewTieredClient_RequiresStandardModel(t *testing.T) {
	_, err := NewTieredClient(&stubProvider{}, TieredClientConfig{}, nil)
	require.Error(t, err)
}

func TestTieredClient_Model(t *testing.T) {
	c, err := NewTieredClient(&stubProvider{}, TieredClientConfig{Models: testModels()}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", c.Model(llm.TierPro))
	assert.Equal(t, "gpt-4o-mini", c.Model(llm.TierStandard))
	assert.Equal(t, "gpt-4o-mini", c.Model(llm.TierLow), "unmapped tier falls back to standard")
}

func TestTieredClient_Generate(t *testing.T) {
	p := &stubProvider{respond: func(int, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return reply("risposta", 20, 5), nil
	}}
	c, err := NewTieredClient(p, TieredClientConfig{Models: testModels(), MaxTokens: 512}, zap.NewNop())
	require.NoError(t, err)

	gen, err := c.Generate(context.Background(), []types.Message{types.NewUserMessage("domanda")}, llm.TierPro)
	require.NoError(t, err)

	assert.Equal(t, "risposta", gen.Text)
	assert.Equal(t, "gpt-4o", gen.Model)
	assert.Equal(t, 20, gen.InputTokens)
	assert.Equal(t, 5, gen.OutputTokens)

	require.Len(t, p.requests, 1)
	assert.Equal(t, "gpt-4o", p.requests[0].Model)
	assert.Equal(t, 512, p.requests[0].MaxTokens)
}

func TestTieredClient_GenerateEstimatesMissingUsage(t *testing.T) {
	p := &stubProvider{respond: func(int, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return reply("una risposta abbastanza lunga", 0, 0), nil
	}}
	c, err := NewTieredClient(p, TieredClientConfig{Models: map[llm.Tier]string{llm.TierStandard: "local-llama"}}, nil)
	require.NoError(t, err)

	gen, err := c.Generate(context.Background(), []types.Message{types.NewUserMessage("domanda")}, llm.TierStandard)
	require.NoError(t, err)
	assert.Positive(t, gen.InputTokens)
	assert.Positive(t, gen.OutputTokens)
}

func TestTieredClient_GenerateFlattensSystemRole(t *testing.T) {
	p := &stubProvider{respond: func(int, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return reply("ok", 1, 1), nil
	}}
	c, err := NewTieredClient(p, TieredClientConfig{
		Models:         testModels(),
		NoSystemModels: []string{"gpt-4o"},
	}, nil)
	require.NoError(t, err)

	msgs := []types.Message{types.NewSystemMessage("sys"), types.NewUserMessage("q")}
	_, err = c.Generate(context.Background(), msgs, llm.TierPro)
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), msgs, llm.TierStandard)
	require.NoError(t, err)

	require.Len(t, p.requests, 2)
	assert.Equal(t, types.RoleUser, p.requests[0].Messages[0].Role)
	assert.Len(t, p.requests[0].Messages, 3)
	assert.Equal(t, types.RoleSystem, p.requests[1].Messages[0].Role)
}

func TestTieredClient_GenerateEmptyChoices(t *testing.T) {
	p := &stubProvider{respond: func(int, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return &llm.ChatResponse{}, nil
	}}
	c, err := NewTieredClient(p, TieredClientConfig{Models: testModels()}, nil)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), nil, llm.TierStandard)
	var llmErr *llm.Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, llm.ErrEmptyResponse, llmErr.Code)
}

func TestTieredClient_GenerateRetriesRetryableErrors(t *testing.T) {
	p := &stubProvider{respond: func(n int, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
		if n == 1 {
			return nil, &llm.Error{Code: llm.ErrRateLimited, Retryable: true}
		}
		return reply("ok", 1, 1), nil
	}}
	c, err := NewTieredClient(p, TieredClientConfig{
		Models: testModels(),
		Retry:  retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond},
	}, nil)
	require.NoError(t, err)

	gen, err := c.Generate(context.Background(), nil, llm.TierStandard)
	require.NoError(t, err)
	assert.Equal(t, "ok", gen.Text)
	assert.Len(t, p.requests, 2)
}

func TestTieredClient_GenerateNoRetryByDefault(t *testing.T) {
	upstream := &llm.Error{Code: llm.ErrUpstreamError, Retryable: true}
	p := &stubProvider{respond: func(int, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, upstream
	}}
	c, err := NewTieredClient(p, TieredClientConfig{Models: testModels()}, nil)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), nil, llm.TierStandard)
	assert.True(t, errors.Is(err, upstream))
	assert.Len(t, p.requests, 1)
}

func TestTieredClient_GenerateTimeout(t *testing.T) {
	p := &stubProvider{respond: func(int, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return reply("ok", 1, 1), nil
	}}

	var deadlineSet bool
	slow := &deadlineProvider{stubProvider: p, seen: &deadlineSet}
	c, err := NewTieredClient(slow, TieredClientConfig{Models: testModels(), Timeout: time.Second}, nil)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), nil, llm.TierStandard)
	require.NoError(t, err)
	assert.True(t, deadlineSet)
}

type deadlineProvider struct {
	*stubProvider
	seen *bool
}

func (d *deadlineProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	_, *d.seen = ctx.Deadline()
	return d.stubProvider.Completion(ctx, req)
}

func TestParseTier(t *testing.T) {
	tier, err := llm.ParseTier(" PRO ")
	require.NoError(t, err)
	assert.Equal(t, llm.TierPro, tier)

	_, err = llm.ParseTier("ultra")
	assert.Error(t, err)
}
