package middleware

import (
	"context"
	"fmt"

	llmpkg "github.com/BaSui01/conceptrag/llm"
)

// RequestRewriter 在请求发往上游前改写请求 (模型兼容性处理).
// 实现不得修改传入的 req, 需要改动时返回副本.
type RequestRewriter interface {
	Rewrite(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error)
	Name() string
}

type funcRewriter struct {
	name string
	fn   func(context.Context, *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error)
}

func (r funcRewriter) Name() string { return r.name }

func (r funcRewriter) Rewrite(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	return r.fn(ctx, req)
}

// RewriteFunc adapts fn to a named RequestRewriter.
func RewriteFunc(name string, fn func(context.Context, *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error)) RequestRewriter {
	return funcRewriter{name: name, fn: fn}
}

// RewriterChain 按顺序执行改写器, 构造后不可变, 可并发使用.
type RewriterChain struct {
	rewriters []RequestRewriter
}

// NewRewriterChain 创建改写器链, nil 改写器被忽略.
func NewRewriterChain(rewriters ...RequestRewriter) *RewriterChain {
	kept := make([]RequestRewriter, 0, len(rewriters))
	for _, r := range rewriters {
		if r != nil {
			kept = append(kept, r)
		}
	}
	return &RewriterChain{rewriters: kept}
}

// Execute 依次改写, 任一失败即中断.
func (c *RewriterChain) Execute(ctx context.Context, req *llmpkg.ChatRequest) (*llmpkg.ChatRequest, error) {
	if c == nil {
		return req, nil
	}
	for _, rewriter := range c.rewriters {
		next, err := rewriter.Rewrite(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("rewriter [%s] failed: %w", rewriter.Name(), err)
		}
		req = next
	}
	return req, nil
}

// Names lists the rewriters in execution order.
func (c *RewriterChain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.rewriters))
	for i, r := range c.rewriters {
		names[i] = r.Name()
	}
	return names
}
