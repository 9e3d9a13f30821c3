package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIPlanner plans with chat completions and function tools.
type OpenAIPlanner struct {
	Client *openai.Client
	Model  string
}

func NewOpenAIPlanner(apiKey, model string) *OpenAIPlanner {
	return NewOpenAIPlannerWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIPlannerWithConfig allows a custom base URL or HTTP client.
func NewOpenAIPlannerWithConfig(cfg openai.ClientConfig, model string) *OpenAIPlanner {
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIPlanner{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (o *OpenAIPlanner) Plan(ctx context.Context, req agent.PlanRequest) (agent.Decision, error) {
	creq := openai.ChatCompletionRequest{
		Model:    o.Model,
		Messages: openAIMessages(req.SystemPrompt, req.Messages),
	}
	if len(req.Tools) > 0 {
		creq.Tools = openAITools(req.Tools)
		creq.ParallelToolCalls = false
	}

	resp, err := o.Client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return agent.Decision{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return agent.Decision{}, errors.New("openai: empty response")
	}
	return openAIDecision(resp.Choices[0].Message)
}

func openAIDecision(msg openai.ChatCompletionMessage) (agent.Decision, error) {
	if len(msg.ToolCalls) == 0 {
		return agent.Answer(msg.Content), nil
	}
	call := msg.ToolCalls[0]
	args, err := decodeArguments(call.Function.Name, []byte(call.Function.Arguments))
	if err != nil {
		return agent.Decision{}, err
	}
	return agent.CallTool(call.ID, call.Function.Name, args), nil
}

func openAITools(specs []agent.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema(),
			},
		})
	}
	return out
}

func openAIMessages(system string, msgs []memory.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if strings.TrimSpace(system) != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case memory.RoleUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case memory.RoleAssistant:
			cm := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content}
			for _, call := range m.ToolCalls {
				cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: encodeArguments(call.Arguments),
					},
				})
			}
			out = append(out, cm)
		case memory.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
	}
	return out
}

const organizationPrompt = `You are an organization validator. Given a list of valid organizations, find the most similar match for the input.
Valid organizations: %s

Rules:
1. Return ONLY the most similar organization name from the list
2. If no good match is found, return null
3. Do not add any explanation or additional text`

// OpenAIOrganizationMatcher asks the model for a catalog entry using a JSON
// schema that only admits the candidates or null.
type OpenAIOrganizationMatcher struct {
	Client *openai.Client
	Model  string
}

func NewOpenAIOrganizationMatcher(apiKey, model string) *OpenAIOrganizationMatcher {
	return NewOpenAIOrganizationMatcherWithConfig(openai.DefaultConfig(apiKey), model)
}

func NewOpenAIOrganizationMatcherWithConfig(cfg openai.ClientConfig, model string) *OpenAIOrganizationMatcher {
	if strings.TrimSpace(model) == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIOrganizationMatcher{Client: openai.NewClientWithConfig(cfg), Model: model}
}

func (m *OpenAIOrganizationMatcher) MatchOrganization(ctx context.Context, input string, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	schema, err := organizationSchema(candidates)
	if err != nil {
		return "", err
	}
	resp, err := m.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(organizationPrompt, strings.Join(candidates, ", "))},
			{Role: openai.ChatMessageRoleUser, Content: "Find the matching organization for: " + input},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "OrganizationValidation",
				Schema: schema,
				Strict: true,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai organization match: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return parseOrganizationAnswer(resp.Choices[0].Message.Content)
}

func organizationSchema(candidates []string) (json.RawMessage, error) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"organization_name": map[string]any{
				"description": "The exact organization name if found, null if not found",
				"anyOf": []any{
					map[string]any{"type": "string", "enum": candidates},
					map[string]any{"type": "null"},
				},
			},
		},
		"required":             []string{"organization_name"},
		"additionalProperties": false,
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func parseOrganizationAnswer(content string) (string, error) {
	var out struct {
		OrganizationName *string `json:"organization_name"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", fmt.Errorf("decode organization answer: %w", err)
	}
	if out.OrganizationName == nil {
		return "", nil
	}
	return strings.TrimSpace(*out.OrganizationName), nil
}
