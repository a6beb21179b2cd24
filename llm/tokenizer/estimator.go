package tokenizer

import (
	"unicode"
	"unicode/utf8"

	"github.com/BaSui01/conceptrag/types"
)

// Estimator 按字符估算 token 数. 拉丁字母约 4 字符/token, 重音字母与 CJK 字符计数更密.
type Estimator struct {
	charsPerToken float64
}

func NewEstimator() *Estimator {
	return &Estimator{charsPerToken: 4.0}
}

// WithCharsPerToken overrides the ASCII chars-per-token ratio.
func (e *Estimator) WithCharsPerToken(ratio float64) *Estimator {
	if ratio > 0 {
		e.charsPerToken = ratio
	}
	return e
}

func (e *Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	var ascii, dense int
	for _, r := range text {
		switch {
		case r < utf8.RuneSelf:
			ascii++
		case unicode.Is(unicode.Han, r), unicode.Is(unicode.Hiragana, r), unicode.Is(unicode.Katakana, r):
			dense += 2
		default:
			dense++
		}
	}
	n := int(float64(ascii)/e.charsPerToken + float64(dense)/1.5)
	if n == 0 {
		n = 1
	}
	return n, nil
}

func (e *Estimator) CountMessages(messages []types.Message) (int, error) {
	return countMessages(messages, e.CountTokens)
}

func (e *Estimator) Name() string { return "estimator" }
