package memory

import (
	"encoding/json"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// messageOverhead is the per-message framing cost used by OpenAI chat models.
const messageOverhead = 3

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the BPE encoding of a model.
type TiktokenCounter struct {
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache   = make(map[string]*tiktoken.Tiktoken)
	encodingCacheMu sync.Mutex
)

// NewTiktokenCounter loads the encoding for model, falling back to cl100k_base
// for models tiktoken does not know.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	encodingCacheMu.Lock()
	defer encodingCacheMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return &TiktokenCounter{encoding: enc, model: model}, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encodingCache[model] = enc
	return &TiktokenCounter{encoding: enc, model: model}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.encoding.Encode(text, nil, nil))
}

// ApproxCounter estimates four characters per token. It is used when no BPE
// encoding can be loaded.
type ApproxCounter struct{}

func (ApproxCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

// NewTokenCounter returns a tiktoken counter for model, or an ApproxCounter when
// the encoding is unavailable.
func NewTokenCounter(model string) TokenCounter {
	counter, err := NewTiktokenCounter(model)
	if err != nil {
		slog.Warn("tiktoken encoding unavailable, estimating token counts", "model", model, "error", err)
		return ApproxCounter{}
	}
	return counter
}

// MessageTokens is the serialized size of m.
func MessageTokens(counter TokenCounter, m Message) int {
	total := messageOverhead + counter.Count(string(m.Role)) + counter.Count(m.Content)
	if m.Name != "" {
		total += counter.Count(m.Name)
	}
	for _, call := range m.ToolCalls {
		total += counter.Count(call.Name)
		if len(call.Arguments) > 0 {
			raw, _ := json.Marshal(call.Arguments)
			total += counter.Count(string(raw))
		}
	}
	return total
}
