package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/BaSui01/conceptrag/internal/tlsutil"
	"github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/llm/providers"
	"github.com/BaSui01/conceptrag/types"
)

const providerName = "openai"

// OpenAIProvider 基于 go-openai 实现 llm.Provider, 适用于 OpenAI 及兼容网关.
type OpenAIProvider struct {
	client *goopenai.Client
	cfg    providers.OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIProvider 创建新的 OpenAI 提供者实例.
func NewOpenAIProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		clientCfg.OrgID = cfg.Organization
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &OpenAIProvider{
		client: goopenai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.With(zap.String("component", "llm_provider"), zap.String("provider", providerName)),
	}
}

func (p *OpenAIProvider) Name() string { return providerName }

// Completion 调用 /chat/completions.
func (p *OpenAIProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}
	if model == "" {
		return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: "model is required", Provider: providerName}
	}

	resp, err := p.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		mapped := mapError(err)
		p.logger.Warn("chat completion failed",
			zap.String("model", model),
			zap.String("trace_id", req.TraceID),
			zap.String("code", string(mapped.Code)),
			zap.Int("http_status", mapped.HTTPStatus))
		return nil, mapped
	}

	out := &llm.ChatResponse{
		ID:       resp.ID,
		Provider: providerName,
		Model:    resp.Model,
		Usage: llm.ChatUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}
	for _, c := range resp.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: string(c.FinishReason),
			Message:      types.NewMessage(types.Role(c.Message.Role), c.Message.Content),
		})
	}
	return out, nil
}

// HealthCheck 通过 /models 探测上游可用性.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.ListModels(ctx)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, mapError(err)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func toOpenAIMessages(msgs []types.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func mapError(err error) *llm.Error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.Type != "" {
			msg = fmt.Sprintf("%s (type: %s)", apiErr.Message, apiErr.Type)
		}
		return providers.MapHTTPError(apiErr.HTTPStatusCode, msg, providerName)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return providers.MapHTTPError(reqErr.HTTPStatusCode, reqErr.Error(), providerName)
	}
	return providers.MapTransportError(err, providerName)
}
