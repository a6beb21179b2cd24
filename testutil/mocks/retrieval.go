package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/conceptrag/rag"
)

// --- MockSearcher ---

// SearchCall 记录一次相似度检索.
type SearchCall struct {
	Query    string
	K        int
	MinScore float64
}

// MockSearcher 是 rag.Searcher 的模拟实现, 按 minScore 过滤并截断到 k.
type MockSearcher struct {
	mu    sync.Mutex
	docs  []rag.RetrievedDocument
	err   error
	calls []SearchCall
}

// NewMockSearcher 创建返回给定文档的检索器, 文档应已按分数降序.
func NewMockSearcher(docs ...rag.RetrievedDocument) *MockSearcher {
	return &MockSearcher{docs: docs}
}

// WithError 让检索失败
func (m *MockSearcher) WithError(err error) *MockSearcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Search 实现 rag.Searcher
func (m *MockSearcher) Search(ctx context.Context, query string, k int, minScore float64) ([]rag.RetrievedDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SearchCall{Query: query, K: k, MinScore: minScore})
	if m.err != nil {
		return nil, m.err
	}
	out := make([]rag.RetrievedDocument, 0, len(m.docs))
	for _, d := range m.docs {
		if d.Score >= minScore {
			out = append(out, d)
		}
	}
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Calls 返回调用记录
func (m *MockSearcher) Calls() []SearchCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SearchCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// --- MockConceptExtractor ---

// ExtractCall 记录一次概念抽取.
type ExtractCall struct {
	Text        string
	MaxConcepts int
	Premium     bool
}

// MockConceptExtractor 是 rag.ConceptExtractor 的模拟实现.
// 按文本返回预设概念, premium 调用可单独预设.
type MockConceptExtractor struct {
	mu       sync.Mutex
	standard map[string][]rag.Concept
	premium  map[string][]rag.Concept
	err      error
	calls    []ExtractCall
}

// NewMockConceptExtractor 创建空的抽取器
func NewMockConceptExtractor() *MockConceptExtractor {
	return &MockConceptExtractor{
		standard: make(map[string][]rag.Concept),
		premium:  make(map[string][]rag.Concept),
	}
}

// On 预设普通模式下 text 的抽取结果
func (m *MockConceptExtractor) On(text string, concepts ...rag.Concept) *MockConceptExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.standard[text] = concepts
	return m
}

// OnPremium 预设 premium 模式下 text 的抽取结果
func (m *MockConceptExtractor) OnPremium(text string, concepts ...rag.Concept) *MockConceptExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.premium[text] = concepts
	return m
}

// WithError 让所有抽取失败
func (m *MockConceptExtractor) WithError(err error) *MockConceptExtractor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Extract 实现 rag.ConceptExtractor
func (m *MockConceptExtractor) Extract(ctx context.Context, text string, maxConcepts int, premium bool) ([]rag.Concept, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ExtractCall{Text: text, MaxConcepts: maxConcepts, Premium: premium})
	if m.err != nil {
		return nil, m.err
	}
	src := m.standard
	if premium {
		src = m.premium
	}
	concepts := src[text]
	out := make([]rag.Concept, len(concepts))
	copy(out, concepts)
	return out, nil
}

// Calls 返回调用记录
func (m *MockConceptExtractor) Calls() []ExtractCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ExtractCall, len(m.calls))
	copy(out, m.calls)
	return out
}
