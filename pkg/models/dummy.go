package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

// DummyPlanner is a deterministic planner for local runs without API calls.
// It never calls tools: it answers with the last tool result of the turn, or
// else the last non-empty line of the last user message.
type DummyPlanner struct {
	Prefix string
}

func NewDummyPlanner(prefix string) *DummyPlanner {
	if strings.TrimSpace(prefix) == "" {
		prefix = "Dummy response:"
	}
	return &DummyPlanner{Prefix: prefix}
}

func (d *DummyPlanner) Plan(_ context.Context, req agent.PlanRequest) (agent.Decision, error) {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
		switch m.Role {
		case memory.RoleTool:
			return agent.Answer(fmt.Sprintf("%s %s", d.Prefix, m.Content)), nil
		case memory.RoleUser:
			return agent.Answer(fmt.Sprintf("%s %s", d.Prefix, lastLine(m.Content))), nil
		}
	}
	return agent.Answer(fmt.Sprintf("%s %s", d.Prefix, lastLine(""))), nil
}

func lastLine(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if candidate := strings.TrimSpace(lines[i]); candidate != "" {
			return candidate
		}
	}
	return "<empty prompt>"
}

// LexicalMatcher matches organizations without a model: an exact
// case-insensitive hit wins, then the shortest candidate containing the
// input or contained in it.
type LexicalMatcher struct{}

func (LexicalMatcher) MatchOrganization(_ context.Context, input string, candidates []string) (string, error) {
	needle := strings.ToLower(strings.TrimSpace(input))
	if needle == "" {
		return "", nil
	}
	best := ""
	for _, c := range candidates {
		hay := strings.ToLower(c)
		if hay == needle {
			return c, nil
		}
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			if best == "" || len(c) < len(best) {
				best = c
			}
		}
	}
	return best, nil
}

var _ agent.Planner = (*DummyPlanner)(nil)
