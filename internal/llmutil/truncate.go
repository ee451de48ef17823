package llmutil

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultEncoding is the BPE used for token budgets.
const DefaultEncoding = "cl100k_base"

// runesPerToken approximates token length when no encoder is available.
const runesPerToken = 4

// Truncator keeps the tail of a growing transcript within a token budget. The
// encoder is loaded on first use; if it cannot be loaded the budget is applied
// to runes instead.
type Truncator struct {
	encoding string
	logger   *zap.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

func NewTruncator(encoding string, logger *zap.Logger) *Truncator {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &Truncator{encoding: encoding, logger: logger.Named("truncator")}
}

func (t *Truncator) encoder() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.Warn("Token encoder unavailable, falling back to rune budget",
				zap.String("encoding", t.encoding), zap.Error(err))
			return
		}
		t.enc = enc
	})
	return t.enc
}

// Count returns the number of tokens in s.
func (t *Truncator) Count(s string) int {
	if enc := t.encoder(); enc != nil {
		return len(enc.Encode(s, nil, nil))
	}
	return (utf8.RuneCountInString(s) + runesPerToken - 1) / runesPerToken
}

// KeepLast returns the last maxTokens tokens of s.
func (t *Truncator) KeepLast(s string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	if enc := t.encoder(); enc != nil {
		tokens := enc.Encode(s, nil, nil)
		if len(tokens) <= maxTokens {
			return s
		}
		return enc.Decode(tokens[len(tokens)-maxTokens:])
	}

	limit := maxTokens * runesPerToken
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-limit:])
}
