package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiPlanner plans with Gemini function calling.
type GeminiPlanner struct {
	Client *genai.Client
	Model  string
}

func NewGeminiPlanner(ctx context.Context, apiKey, model string) (*GeminiPlanner, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiPlanner{Client: client, Model: model}, nil
}

func (g *GeminiPlanner) Close() error { return g.Client.Close() }

func (g *GeminiPlanner) Plan(ctx context.Context, req agent.PlanRequest) (agent.Decision, error) {
	contents := geminiContents(req.Messages)
	if len(contents) == 0 {
		return agent.Decision{}, errors.New("gemini: nothing to send")
	}

	model := g.Client.GenerativeModel(g.Model)
	if prompt := strings.TrimSpace(req.SystemPrompt); prompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(prompt)}}
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(req.Tools)}}
	}

	cs := model.StartChat()
	cs.History = contents[:len(contents)-1]
	resp, err := cs.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return agent.Decision{}, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return agent.Decision{}, errors.New("gemini: empty response")
	}
	return geminiDecision(resp.Candidates[0]), nil
}

func geminiDecision(c *genai.Candidate) agent.Decision {
	if calls := c.FunctionCalls(); len(calls) > 0 {
		args := calls[0].Args
		if args == nil {
			args = map[string]any{}
		}
		return agent.CallTool("", calls[0].Name, args)
	}
	var text strings.Builder
	for _, p := range c.Content.Parts {
		if t, ok := p.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return agent.Answer(text.String())
}

func geminiDeclarations(specs []agent.ToolSpec) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, spec := range specs {
		decl := &genai.FunctionDeclaration{Name: spec.Name, Description: spec.Description}
		if len(spec.Params) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(spec.Params)),
				Required:   spec.RequiredParams(),
			}
			for _, p := range spec.Params {
				schema.Properties[p.Name] = &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
			}
			decl.Parameters = schema
		}
		out = append(out, decl)
	}
	return out
}

func geminiType(t agent.ParamType) genai.Type {
	switch t {
	case agent.ParamInteger:
		return genai.TypeInteger
	case agent.ParamNumber:
		return genai.TypeNumber
	case agent.ParamBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

// geminiContents converts the transcript. Gemini calls the assistant "model"
// and carries tool results as function responses on the user side.
func geminiContents(msgs []memory.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case memory.RoleUser:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		case memory.RoleAssistant:
			var parts []genai.Part
			if m.Content != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Arguments})
			}
			if len(parts) == 0 {
				continue
			}
			out = append(out, &genai.Content{Role: "model", Parts: parts})
		case memory.RoleTool:
			part := genai.FunctionResponse{Name: m.Name, Response: map[string]any{"content": m.Content}}
			if n := len(out); n > 0 && out[n-1].Role == "user" && isFunctionResponse(out[n-1]) {
				out[n-1].Parts = append(out[n-1].Parts, part)
				continue
			}
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{part}})
		}
	}
	return out
}

func isFunctionResponse(c *genai.Content) bool {
	for _, p := range c.Parts {
		if _, ok := p.(genai.FunctionResponse); !ok {
			return false
		}
	}
	return len(c.Parts) > 0
}
