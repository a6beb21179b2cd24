package embedding

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/BaSui01/conceptrag/internal/tlsutil"
	"github.com/BaSui01/conceptrag/llm/providers"
	"github.com/BaSui01/conceptrag/rag"
)

const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig 配置 OpenAI 兼容的嵌入服务.
type OpenAIConfig struct {
	providers.BaseProviderConfig `yaml:",inline"`
	Dimensions                   int `json:"dimensions,omitempty" yaml:"dimensions,omitempty" env:"DIMENSIONS"`
	// MaxBatch 单次请求的最大输入数.
	MaxBatch int `json:"max_batch,omitempty" yaml:"max_batch,omitempty" env:"MAX_BATCH"`
}

// OpenAIProvider implements embedding using OpenAI's API.
type OpenAIProvider struct {
	client *goopenai.Client
	cfg    OpenAIConfig
}

// NewOpenAIProvider creates a new OpenAI embedding provider.
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 2048
	}
	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &OpenAIProvider{client: goopenai.NewClientWithConfig(clientCfg), cfg: cfg}
}

func (p *OpenAIProvider) Name() string    { return "openai-embedding" }
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

// EmbedQuery 实现 Provider.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	vecs, err := p.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments 实现 Provider, 超过 MaxBatch 时分批请求.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, 0, len(documents))
	for start := 0; start < len(documents); start += p.cfg.MaxBatch {
		end := min(start+p.cfg.MaxBatch, len(documents))
		vecs, err := p.embed(ctx, documents[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (p *OpenAIProvider) embed(ctx context.Context, input []string) ([][]float64, error) {
	resp, err := p.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input:      input,
		Model:      goopenai.EmbeddingModel(p.cfg.Model),
		Dimensions: p.cfg.Dimensions,
	})
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return nil, providers.MapHTTPError(apiErr.HTTPStatusCode, apiErr.Message, p.Name())
		}
		return nil, providers.MapTransportError(err, p.Name())
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(input), len(resp.Data))
	}

	out := make([][]float64, len(input))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding: index %d out of range", d.Index)
		}
		out[d.Index] = rag.Float32ToFloat64(d.Embedding)
	}
	return out, nil
}
