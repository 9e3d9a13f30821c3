package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
)

// OrganizationMatcher picks the catalog entry closest to input. It returns ""
// when nothing matches.
type OrganizationMatcher interface {
	MatchOrganization(ctx context.Context, input string, candidates []string) (string, error)
}

// OrganizationResult is the JSON output of ValidateOrganization. A nil name is
// the absent marker.
type OrganizationResult struct {
	OrganizationName *string `json:"organization_name"`
}

const (
	orgCacheSize = 512
	orgCacheTTL  = time.Hour
)

// ValidateOrganizationTool canonicalizes an organization guess against the
// catalog. Answers are cached per normalized input.
type ValidateOrganizationTool struct {
	catalog *orgs.Catalog
	matcher OrganizationMatcher
	cache   *expirable.LRU[string, string]
	logger  *slog.Logger
}

func NewValidateOrganizationTool(catalog *orgs.Catalog, matcher OrganizationMatcher, logger *slog.Logger) *ValidateOrganizationTool {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateOrganizationTool{
		catalog: catalog,
		matcher: matcher,
		cache:   expirable.NewLRU[string, string](orgCacheSize, nil, orgCacheTTL),
		logger:  logger,
	}
}

func (t *ValidateOrganizationTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name: "ValidateOrganization",
		Description: "Validates and extracts the correct organization name from the input. " +
			"Returns the exact organization name if found, or null if not found.",
		Category: CategoryOrganization,
		Params: []agent.Param{
			{Name: "organization_input", Type: agent.ParamString, Required: true, Description: "The organization name as mentioned by the user."},
		},
		Examples: []map[string]any{{"organization_input": "Acme Corp"}},
	}
}

func (t *ValidateOrganizationTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	name := t.Validate(ctx, req.String("organization_input"))
	var res OrganizationResult
	if name != "" {
		res.OrganizationName = &name
	}
	b, err := json.Marshal(res)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{Content: string(b)}, nil
}

// Validate returns the catalog entry for input, or "" when there is none.
func (t *ValidateOrganizationTool) Validate(ctx context.Context, input string) string {
	input = strings.TrimSpace(input)
	if input == "" || t.catalog.Len() == 0 || t.matcher == nil {
		return ""
	}
	key := strings.ToLower(input)
	if name, ok := t.cache.Get(key); ok {
		return name
	}

	match, err := t.matcher.MatchOrganization(ctx, input, t.catalog.Names())
	if err != nil {
		t.logger.Warn("organization match failed", "input", input, "error", err)
		return ""
	}
	if !t.catalog.Contains(match) {
		if match != "" {
			t.logger.Warn("organization matcher answered outside the catalog", "input", input, "answer", match)
		}
		match = ""
	}
	t.cache.Add(key, match)
	return match
}
