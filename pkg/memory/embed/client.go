package embed

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
)

// DefaultDimensions is the vector width of text-embedding-3-small.
const DefaultDimensions = 1536

var tracer = otel.Tracer("github.com/Protocol-Lattice/meeting-agent/pkg/memory/embed")

// Client is the embedding entry point used by capabilities. It normalizes input,
// checks the vector width and reports provider failures as upstream model errors.
type Client struct {
	embedder   Embedder
	dimensions int
	logger     *slog.Logger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithDimensions sets the expected vector width. Zero disables the check.
func WithDimensions(d int) ClientOption {
	return func(c *Client) { c.dimensions = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewClient(embedder Embedder, opts ...ClientOption) *Client {
	c := &Client{embedder: embedder, dimensions: DefaultDimensions, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the vector for text. No retry is attempted.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = Normalize(text)
	ctx, span := tracer.Start(ctx, "embedding.embed")
	defer span.End()
	span.SetAttributes(attribute.Int("embedding.input_length", len(text)))

	vec, err := c.embedder.Embed(ctx, text)
	if err == nil && c.dimensions > 0 && len(vec) != c.dimensions {
		err = fmt.Errorf("expected %d dimensions, got %d", c.dimensions, len(vec))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("embedding failed", "error", err)
		return nil, agent.Upstream("embedding", err)
	}
	return vec, nil
}

// Dimensions returns the expected vector width.
func (c *Client) Dimensions() int { return c.dimensions }
