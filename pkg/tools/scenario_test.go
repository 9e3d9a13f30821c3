package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore/docstoretest"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
)

// acmePlanner follows the documented procedure for "Show me meetings with Acme
// Corp last month": date, organization, filtered search, answer.
func acmePlanner(t *testing.T, seen *[]string) agent.Planner {
	return agent.PlannerFunc(func(_ context.Context, req agent.PlanRequest) (agent.Decision, error) {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == memory.RoleTool {
			*seen = append(*seen, last.Name)
		}
		switch len(*seen) {
		case 0:
			return agent.CallTool("c1", "ExtractCurrentDate", nil), nil
		case 1:
			if !strings.HasPrefix(last.Content, "2025-04-15") {
				t.Errorf("unexpected current date %q", last.Content)
			}
			return agent.CallTool("c2", "ValidateOrganization", map[string]any{"organization_input": "Acme Corp"}), nil
		case 2:
			var res OrganizationResult
			if err := json.Unmarshal([]byte(last.Content), &res); err != nil || res.OrganizationName == nil {
				return agent.Answer("I could not find that organization."), nil
			}
			return agent.CallTool("c3", "SearchMeetingsByOrganization", map[string]any{
				"user_input":         "meetings from 2025-03-01 to 2025-03-31",
				"organization_input": *res.OrganizationName,
			}), nil
		default:
			return agent.Answer("Here is what I found:\n" + last.Content), nil
		}
	})
}

func TestAcmeLastMonthScenario(t *testing.T) {
	store := docstoretest.New()
	store.ByOrganization["ACME Corp"] = []docstore.Record{
		{"title": "Acme kickoff", "start_date": "2025-03-03", "summary": "Scope agreed"},
		{"title": "Acme review", "start_date": "2025-03-24", "summary": "Budget approved"},
	}
	catalog := orgs.NewCatalog("test", []string{"ACME Corp", "Globex"})
	matcher := &stubMatcher{answers: map[string]string{"Acme Corp": "ACME Corp"}}
	now := time.Date(2025, 4, 15, 8, 0, 0, 0, time.UTC)

	registry, err := NewRegistry(Dependencies{
		Now:           func() time.Time { return now },
		Catalog:       catalog,
		Organizations: NewValidateOrganizationTool(catalog, matcher, nil),
		Embedder:      &countingEmbedder{},
		Retriever:     store.Bind(auth.Identity{UserID: "user-1"}),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	var seen []string
	state := memory.NewConversationState(0, nil)
	a, err := agent.New(agent.Options{Planner: acmePlanner(t, &seen), Registry: registry, Memory: state})
	if err != nil {
		t.Fatalf("agent.New: %v", err)
	}

	answer, err := a.Respond(context.Background(), "Show me meetings with Acme Corp last month")
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	if got := strings.Join(seen, ","); got != "ExtractCurrentDate,ValidateOrganization,SearchMeetingsByOrganization" {
		t.Fatalf("unexpected capability order %s", got)
	}
	calls := store.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one store call, got %+v", calls)
	}
	call := calls[0]
	if call.Method != "SearchMeetingsByOrganization" || call.Organization != "ACME Corp" {
		t.Fatalf("unexpected store call %+v", call)
	}
	if !strings.Contains(call.QueryText, "2025-03-01") || !strings.Contains(call.QueryText, "2025-03-31") {
		t.Fatalf("query should carry the resolved range: %q", call.QueryText)
	}
	if strings.Index(answer, "Acme review") > strings.Index(answer, "Acme kickoff") {
		t.Fatalf("expected newest meeting first:\n%s", answer)
	}

	history := state.Messages()
	if len(history) != 2 || history[0].Role != memory.RoleUser || history[1].Role != memory.RoleAssistant {
		t.Fatalf("only the user message and final answer should be committed: %+v", history)
	}
	if matcher.calls != 1 {
		t.Fatalf("expected one organization match, got %d", matcher.calls)
	}
}
