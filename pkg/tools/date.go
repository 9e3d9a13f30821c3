package tools

import (
	"context"
	"time"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
)

// CurrentDateTool reports the current time so the planner can resolve
// relative phrases such as "last week".
type CurrentDateTool struct {
	Now func() time.Time
}

func NewCurrentDateTool(now func() time.Time) *CurrentDateTool {
	if now == nil {
		now = time.Now
	}
	return &CurrentDateTool{Now: now}
}

func (t *CurrentDateTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        "ExtractCurrentDate",
		Description: "Returns the current date/time, allowing you to interpret requests like 'last week' or 'two months ago'.",
		Category:    CategoryDate,
	}
}

func (t *CurrentDateTool) Invoke(_ context.Context, _ agent.ToolRequest) (agent.ToolResponse, error) {
	return agent.ToolResponse{Content: t.Now().Format(time.RFC3339)}, nil
}
