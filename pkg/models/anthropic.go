package models

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

const (
	DefaultAnthropicModel     = "claude-3-5-sonnet-latest"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicPlanner plans with the Messages API and tool use.
type AnthropicPlanner struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

func NewAnthropicPlanner(apiKey, model string, opts ...anthropicopt.RequestOption) *AnthropicPlanner {
	if strings.TrimSpace(model) == "" {
		model = DefaultAnthropicModel
	}
	cl := anthropic.NewClient(append([]anthropicopt.RequestOption{anthropicopt.WithAPIKey(apiKey)}, opts...)...)
	return &AnthropicPlanner{
		Client:    &cl,
		Model:     model,
		MaxTokens: defaultAnthropicMaxTokens,
	}
}

func (a *AnthropicPlanner) Plan(ctx context.Context, req agent.PlanRequest) (agent.Decision, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		Messages:  anthropicMessages(req.Messages),
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: anthropic.Bool(true)},
		}
	}

	msg, err := a.Client.Messages.New(ctx, params)
	if err != nil {
		return agent.Decision{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, cb := range msg.Content {
		switch block := cb.AsAny().(type) {
		case anthropic.ToolUseBlock:
			args, err := decodeArguments(block.Name, block.Input)
			if err != nil {
				return agent.Decision{}, err
			}
			return agent.CallTool(block.ID, block.Name, args), nil
		case anthropic.TextBlock:
			text.WriteString(block.Text)
		}
	}
	return agent.Answer(text.String()), nil
}

func anthropicTools(specs []agent.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		props, required := schemaParts(spec)
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		}})
	}
	return out
}

// anthropicMessages converts the transcript. Tool results travel as user
// messages; consecutive results share one message.
func anthropicMessages(msgs []memory.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	lastWasTool := false
	for _, m := range msgs {
		switch m.Role {
		case memory.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			lastWasTool = false
		case memory.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
			lastWasTool = false
		case memory.RoleTool:
			block := anthropic.NewToolResultBlock(m.ToolCallID, m.Content, isToolError(m.Content))
			if lastWasTool {
				last := &out[len(out)-1]
				last.Content = append(last.Content, block)
				continue
			}
			out = append(out, anthropic.NewUserMessage(block))
			lastWasTool = true
		}
	}
	return out
}

func isToolError(content string) bool {
	return strings.HasPrefix(content, "Error:")
}
