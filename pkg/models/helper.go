package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/tools"
)

// Options selects and configures a planning backend.
type Options struct {
	Provider string
	Model    string
	APIKey   string
}

// NewPlanner returns the planner for opts.Provider.
func NewPlanner(ctx context.Context, opts Options) (agent.Planner, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "openai":
		return NewOpenAIPlanner(opts.APIKey, opts.Model), nil
	case "anthropic", "claude":
		return NewAnthropicPlanner(opts.APIKey, opts.Model), nil
	case "gemini", "google":
		return NewGeminiPlanner(ctx, opts.APIKey, opts.Model)
	case "dummy":
		return NewDummyPlanner(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", opts.Provider)
	}
}

// NewOrganizationMatcher returns the matcher paired with a planning backend.
// Only OpenAI supports constrained structured output; every other provider
// falls back to lexical matching.
func NewOrganizationMatcher(opts Options) tools.OrganizationMatcher {
	switch strings.ToLower(strings.TrimSpace(opts.Provider)) {
	case "", "openai":
		return NewOpenAIOrganizationMatcher(opts.APIKey, opts.Model)
	default:
		return LexicalMatcher{}
	}
}

func schemaParts(spec agent.ToolSpec) (map[string]any, []string) {
	schema := spec.InputSchema()
	props, _ := schema["properties"].(map[string]any)
	required, _ := schema["required"].([]string)
	return props, required
}

func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func decodeArguments(tool string, raw []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments for %s: %w", tool, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
