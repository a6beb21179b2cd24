package tokenizer

import (
	"strings"
	"sync"

	"github.com/BaSui01/conceptrag/types"
)

// Counter 统计文本与消息的 token 数, 用于在上游未返回用量时补齐计数.
type Counter interface {
	// CountTokens 返回给定文本的 token 数.
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数, 含每条消息的角色与分隔开销.
	CountMessages(messages []types.Message) (int, error)

	Name() string
}

const (
	perMessageOverhead   = 4
	conversationOverhead = 3
)

var (
	counters   = make(map[string]Counter)
	countersMu sync.RWMutex
)

// Register 为模型名称 (或模型名前缀) 注册计数器.
func Register(model string, c Counter) {
	countersMu.Lock()
	defer countersMu.Unlock()
	counters[model] = c
}

// ForModel 返回模型的计数器: 先精确匹配, 再取最长前缀匹配,
// 都没有时 OpenAI 系列回落到 tiktoken, 其余使用字符估算器.
func ForModel(model string) Counter {
	countersMu.RLock()
	c, ok := counters[model]
	if !ok {
		best := ""
		for prefix, candidate := range counters {
			if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
				best, c = prefix, candidate
			}
		}
		ok = best != ""
	}
	countersMu.RUnlock()
	if ok {
		return c
	}

	if encoding, known := encodingFor(model); known {
		t := NewTiktokenCounter(encoding)
		Register(model, t)
		return t
	}
	return NewEstimator()
}

func countMessages(messages []types.Message, count func(string) (int, error)) (int, error) {
	total := conversationOverhead
	for _, m := range messages {
		n, err := count(m.Content)
		if err != nil {
			return 0, err
		}
		r, err := count(string(m.Role))
		if err != nil {
			return 0, err
		}
		total += perMessageOverhead + n + r
	}
	return total, nil
}
