package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
)

// Embedder turns text into a vector. *embed.Client satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrOrganizationNotValidated is returned when a filter is not a catalog entry.
var ErrOrganizationNotValidated = errors.New("organization must be validated with ValidateOrganization first")

const userInputDescription = "Input from the user, please include the organization name in the user_input as well. " +
	"If user mentions date range, please include the date range in the user_input as well."

func offsetParam() agent.Param {
	return agent.Param{Name: "offset", Type: agent.ParamInteger, Description: "Number of already shown results to skip when the user asks to see more. Defaults to 0."}
}

// SearchMeetingsTool runs the hybrid meeting search.
type SearchMeetingsTool struct {
	embedder   Embedder
	retriever  docstore.Retriever
	matchCount int
	pageSize   int
}

func NewSearchMeetingsTool(embedder Embedder, retriever docstore.Retriever, pageSize int) *SearchMeetingsTool {
	return &SearchMeetingsTool{embedder: embedder, retriever: retriever, matchCount: docstore.DefaultMeetingMatchCount, pageSize: pageSize}
}

func (t *SearchMeetingsTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        "SearchMeetings",
		Description: "Search for relevant meetings. Returns matching meeting records, newest first, five at a time.",
		Category:    CategoryMeetings,
		Params: []agent.Param{
			{Name: "user_input", Type: agent.ParamString, Required: true, Description: userInputDescription},
			offsetParam(),
		},
	}
}

func (t *SearchMeetingsTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	query := strings.TrimSpace(req.String("user_input"))
	if query == "" {
		return agent.ToolResponse{}, errors.New("user_input must not be empty")
	}
	vec, err := embedQuery(ctx, t.embedder, query)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	records, err := t.retriever.SearchMeetings(ctx, query, vec, t.matchCount)
	if err != nil {
		return agent.ToolResponse{}, fmt.Errorf("search meetings: %w", err)
	}
	return agent.ToolResponse{
		Content:  FormatMeetings(records, req.Int("offset", 0), t.pageSize),
		Metadata: map[string]string{"matches": fmt.Sprint(len(records))},
	}, nil
}

// SearchMeetingsByOrganizationTool runs the meeting search filtered to one
// catalog organization.
type SearchMeetingsByOrganizationTool struct {
	embedder   Embedder
	retriever  docstore.Retriever
	catalog    *orgs.Catalog
	matchCount int
	pageSize   int
}

func NewSearchMeetingsByOrganizationTool(embedder Embedder, retriever docstore.Retriever, catalog *orgs.Catalog, pageSize int) *SearchMeetingsByOrganizationTool {
	return &SearchMeetingsByOrganizationTool{
		embedder:   embedder,
		retriever:  retriever,
		catalog:    catalog,
		matchCount: docstore.DefaultMeetingMatchCount,
		pageSize:   pageSize,
	}
}

func (t *SearchMeetingsByOrganizationTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name:        "SearchMeetingsByOrganization",
		Description: "Search for relevant meetings of one organization. Returns matching meeting records, newest first, five at a time.",
		Category:    CategoryMeetings,
		Params: []agent.Param{
			{Name: "user_input", Type: agent.ParamString, Required: true, Description: userInputDescription},
			{Name: "organization_input", Type: agent.ParamString, Required: true, Description: "The exact organization name to filter meetings by, as returned by ValidateOrganization."},
			offsetParam(),
		},
	}
}

func (t *SearchMeetingsByOrganizationTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	query := strings.TrimSpace(req.String("user_input"))
	if query == "" {
		return agent.ToolResponse{}, errors.New("user_input must not be empty")
	}
	org := req.String("organization_input")
	if !t.catalog.Contains(org) {
		return agent.ToolResponse{}, fmt.Errorf("%w: %q is not a known organization", ErrOrganizationNotValidated, org)
	}
	vec, err := embedQuery(ctx, t.embedder, query)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	records, err := t.retriever.SearchMeetingsByOrganization(ctx, query, vec, org, t.matchCount)
	if err != nil {
		return agent.ToolResponse{}, fmt.Errorf("search meetings of %s: %w", org, err)
	}
	return agent.ToolResponse{
		Content:  FormatMeetings(records, req.Int("offset", 0), t.pageSize),
		Metadata: map[string]string{"matches": fmt.Sprint(len(records)), "organization": org},
	}, nil
}

func embedQuery(ctx context.Context, embedder Embedder, text string) ([]float32, error) {
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, agent.Upstream("embedding", err)
	}
	return vec, nil
}
