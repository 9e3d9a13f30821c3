package agent

import (
	"context"

	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

// PlanRequest is everything the planner sees for one PLANNING step: the system
// instructions, the committed conversation followed by the current turn, and the
// capabilities it may call.
type PlanRequest struct {
	SessionID    string
	SystemPrompt string
	Messages     []memory.Message
	Tools        []ToolSpec
}

// Decision is the planner's answer: either exactly one tool call or final text.
type Decision struct {
	ToolCall *memory.ToolCall
	Final    string
}

// IsFinal reports whether the decision terminates the turn.
func (d Decision) IsFinal() bool { return d.ToolCall == nil }

// Planner is the model-driven select-or-terminate oracle.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (Decision, error)
}

// PlannerFunc adapts a function to the Planner interface.
type PlannerFunc func(ctx context.Context, req PlanRequest) (Decision, error)

func (f PlannerFunc) Plan(ctx context.Context, req PlanRequest) (Decision, error) {
	return f(ctx, req)
}

// CallTool is a convenience constructor for a tool-call decision.
func CallTool(id, name string, args map[string]any) Decision {
	return Decision{ToolCall: &memory.ToolCall{ID: id, Name: name, Arguments: args}}
}

// Answer is a convenience constructor for a final decision.
func Answer(text string) Decision { return Decision{Final: text} }
