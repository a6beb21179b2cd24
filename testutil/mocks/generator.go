package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/conceptrag/llm"
	"github.com/BaSui01/conceptrag/types"
)

// GeneratorCall 记录一次 Generate 调用.
type GeneratorCall struct {
	Messages []types.Message
	Tier     llm.Tier
}

// MockGenerator 是 llm.Generator 的模拟实现.
// 响应优先级: fn > 队列 > 固定响应.
type MockGenerator struct {
	mu sync.Mutex

	fn       func(call int, messages []types.Message, tier llm.Tier) (llm.Generation, error)
	queue    []llm.Generation
	fallback llm.Generation
	err      error

	calls []GeneratorCall
}

// NewMockGenerator 创建返回 "Mock response" 且用量为 10/20 的生成器.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		fallback: llm.Generation{Text: "Mock response", Model: "mock", InputTokens: 10, OutputTokens: 20},
	}
}

// WithResponse 设置固定响应文本
func (m *MockGenerator) WithResponse(text string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback.Text = text
	return m
}

// WithUsage 设置固定响应的 token 用量
func (m *MockGenerator) WithUsage(input, output int) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback.InputTokens, m.fallback.OutputTokens = input, output
	return m
}

// Enqueue 追加按顺序返回的响应
func (m *MockGenerator) Enqueue(gens ...llm.Generation) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, gens...)
	return m
}

// WithError 让所有调用失败
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 设置自定义响应函数, call 从 0 开始
func (m *MockGenerator) WithFunc(fn func(call int, messages []types.Message, tier llm.Tier) (llm.Generation, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Generate 实现 llm.Generator
func (m *MockGenerator) Generate(ctx context.Context, messages []types.Message, tier llm.Tier) (llm.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	call := len(m.calls)
	msgs := make([]types.Message, len(messages))
	copy(msgs, messages)
	m.calls = append(m.calls, GeneratorCall{Messages: msgs, Tier: tier})

	if err := ctx.Err(); err != nil {
		return llm.Generation{}, err
	}
	if m.fn != nil {
		return m.fn(call, msgs, tier)
	}
	if m.err != nil {
		return llm.Generation{}, m.err
	}
	if len(m.queue) > 0 {
		g := m.queue[0]
		m.queue = m.queue[1:]
		return g, nil
	}
	return m.fallback, nil
}

// Calls 返回调用记录
func (m *MockGenerator) Calls() []GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GeneratorCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
