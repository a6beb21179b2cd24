package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/conceptrag/types"
)

// 模型前缀到 tiktoken 编码的映射, 较长前缀优先.
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
	{"text-embedding-3", "cl100k_base"},
	{"text-embedding-ada", "cl100k_base"},
}

func encodingFor(model string) (string, bool) {
	for _, e := range modelEncodings {
		if strings.HasPrefix(model, e.prefix) {
			return e.encoding, true
		}
	}
	return "", false
}

// TiktokenCounter 使用 tiktoken 精确计数.
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

func NewTiktokenCounter(encoding string) *TiktokenCounter {
	return &TiktokenCounter{encoding: encoding}
}

// 编码表在首次使用时加载 (可能需要下载 BPE 数据).
func (t *TiktokenCounter) load() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountTokens(text string) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenCounter) CountMessages(messages []types.Message) (int, error) {
	if err := t.load(); err != nil {
		return 0, err
	}
	return countMessages(messages, t.CountTokens)
}

func (t *TiktokenCounter) Name() string {
	return "tiktoken[" + t.encoding + "]"
}
