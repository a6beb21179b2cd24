package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/llm/middleware"
	"github.com/BaSui01/conceptrag/llm/retry"
	"github.com/BaSui01/conceptrag/llm/tokenizer"
	"github.com/BaSui01/conceptrag/types"
)

// TieredClientConfig 配置档位到模型的映射.
type TieredClientConfig struct {
	Models      map[llm.Tier]string
	MaxTokens   int
	Temperature float32
	// Timeout bounds every provider call; zero disables the bound.
	Timeout time.Duration
	// NoSystemModels lists models that reject a leading system message.
	NoSystemModels []string
	Retry          retry.Policy
}

// TieredClient 在 Provider 之上按档位选择模型, 执行改写器链, 并在上游未返回用量时估算 token.
type TieredClient struct {
	provider  llm.Provider
	config    TieredClientConfig
	rewriters *middleware.RewriterChain
	retryer   *retry.Retryer
	logger    *zap.Logger
}

// NewTieredClient creates a tiered client. TierStandard must be mapped; the other tiers
// fall back to it.
func NewTieredClient(provider llm.Provider, config TieredClientConfig, logger *zap.Logger) (*TieredClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Models[llm.TierStandard] == "" {
		return nil, fmt.Errorf("tiered client: no model configured for tier %q", llm.TierStandard)
	}
	if config.Retry.ShouldRetry == nil {
		config.Retry.ShouldRetry = llm.IsRetryable
	}
	logger = logger.With(zap.String("component", "llm_client"), zap.String("provider", provider.Name()))
	return &TieredClient{
		provider:  provider,
		config:    config,
		rewriters: middleware.NewRewriterChain(middleware.NewSystemRoleFlattener(config.NoSystemModels)),
		retryer:   retry.New(config.Retry, logger),
		logger:    logger,
	}, nil
}

// Model returns the model mapped to a tier.
func (c *TieredClient) Model(tier llm.Tier) string {
	if m := c.config.Models[tier]; m != "" {
		return m
	}
	return c.config.Models[llm.TierStandard]
}

// Generate implements llm.Generator.
func (c *TieredClient) Generate(ctx context.Context, messages []types.Message, tier llm.Tier) (llm.Generation, error) {
	model := c.Model(tier)
	req := &llm.ChatRequest{
		Model:       model,
		Messages:    append([]types.Message(nil), messages...),
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Timeout:     c.config.Timeout,
	}
	if id, ok := types.RequestID(ctx); ok {
		req.TraceID = id
	}

	req, err := c.rewriters.Execute(ctx, req)
	if err != nil {
		return llm.Generation{}, err
	}

	resp, err := retry.Do(ctx, c.retryer, func(ctx context.Context) (*llm.ChatResponse, error) {
		callCtx := ctx
		if c.config.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()
		}
		return c.provider.Completion(callCtx, req)
	})
	if err != nil {
		return llm.Generation{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Generation{}, &llm.Error{
			Code:     llm.ErrEmptyResponse,
			Message:  fmt.Sprintf("model %s returned no choices", model),
			Provider: c.provider.Name(),
		}
	}

	gen := llm.Generation{
		Text:         resp.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if gen.InputTokens == 0 && gen.OutputTokens == 0 {
		gen.InputTokens, gen.OutputTokens = estimateUsage(model, req.Messages, gen.Text)
	}

	c.logger.Debug("generation completed",
		zap.String("tier", string(tier)),
		zap.String("model", model),
		zap.Int("input_tokens", gen.InputTokens),
		zap.Int("output_tokens", gen.OutputTokens))
	return gen, nil
}

// HealthCheck delegates to the provider.
func (c *TieredClient) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return c.provider.HealthCheck(ctx)
}

func estimateUsage(model string, messages []types.Message, output string) (int, int) {
	counter := tokenizer.ForModel(model)
	in, err := counter.CountMessages(messages)
	if err != nil {
		return 0, 0
	}
	out, err := counter.CountTokens(output)
	if err != nil {
		return in, 0
	}
	return in, out
}
