package embed

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Placeholder is embedded in place of inputs that carry no meaning.
const Placeholder = "empty string"

// ErrNotSupported is returned when a provider answers without a vector.
var ErrNotSupported = errors.New("embedding not supported by provider")

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderFunc adapts a function to the Embedder interface.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// Meaningful reports whether s has more than one non-space byte.
func Meaningful(s string) bool {
	return len(strings.TrimSpace(s)) > 1
}

// OrPlaceholder returns s, or Placeholder when s is not meaningful.
func OrPlaceholder(s string) string {
	if !Meaningful(s) {
		return Placeholder
	}
	return s
}

// Normalize replaces line breaks with spaces.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	return strings.ReplaceAll(text, "\n", " ")
}

// Options select and configure a provider.
type Options struct {
	Provider string
	Model    string
	APIKey   string
	Host     string
}

// New builds the embedder for opts.Provider: openai (default), gemini or ollama.
func New(ctx context.Context, opts Options) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "openai":
		return NewOpenAIEmbedder(opts.APIKey, opts.Model)
	case "gemini", "google", "vertex", "vertexai":
		return NewGeminiEmbedder(ctx, opts.APIKey, opts.Model)
	case "ollama":
		return NewOllamaEmbedder(opts.Host, opts.Model)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
}
