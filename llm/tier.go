package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/conceptrag/types"
)

// Tier 选择调用的模型档位.
type Tier string

const (
	TierStandard Tier = "standard"
	TierPro      Tier = "pro"
	TierLow      Tier = "low"
)

// ParseTier parses a tier name; unknown names are an error.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierStandard, TierPro, TierLow:
		return t, nil
	default:
		return "", fmt.Errorf("unknown model tier %q", s)
	}
}

// Generation 是一次生成的结果与 token 用量.
type Generation struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Generator 是工作流消费的语言模型接口.
type Generator interface {
	Generate(ctx context.Context, messages []types.Message, tier Tier) (Generation, error)
}

// IsRetryable reports whether err is a retryable provider error.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
