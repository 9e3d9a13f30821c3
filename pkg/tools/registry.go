package tools

import (
	"errors"
	"time"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
)

const (
	CategoryDate         = "date"
	CategoryOrganization = "organization"
	CategoryMeetings     = "meetings"
	CategoryTravel       = "travel"
)

// Dependencies are the collaborators of one session's capabilities.
type Dependencies struct {
	Now           func() time.Time
	Catalog       *orgs.Catalog
	Organizations *ValidateOrganizationTool
	Embedder      Embedder
	Retriever     docstore.Retriever
	Travel        *TravelSearcher
	PageSize      int
}

// NewRegistry builds the capability registry for one session.
func NewRegistry(deps Dependencies) (*agent.Registry, error) {
	if deps.Embedder == nil {
		return nil, errors.New("capabilities require an embedder")
	}
	if deps.Retriever == nil {
		return nil, errors.New("capabilities require a retriever")
	}
	if deps.Organizations == nil {
		return nil, errors.New("capabilities require an organization validator")
	}
	travel := deps.Travel
	if travel == nil {
		travel = NewTravelSearcher(deps.Embedder, nil)
	}
	return agent.NewRegistry(
		NewCurrentDateTool(deps.Now),
		deps.Organizations,
		NewSearchMeetingsTool(deps.Embedder, deps.Retriever, deps.PageSize),
		NewSearchMeetingsByOrganizationTool(deps.Embedder, deps.Retriever, deps.Catalog, deps.PageSize),
		NewSearchTravelPackagesTool(travel, deps.Retriever),
	)
}
