package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory/embed"
)

// TravelQuery holds the eight free-text travel preferences.
type TravelQuery struct {
	Location       string `json:"location_input"`
	Duration       string `json:"duration_input"`
	Budget         string `json:"budget_input"`
	Transportation string `json:"transportation_input"`
	Accommodation  string `json:"accommodation_input"`
	Food           string `json:"food_input"`
	Activities     string `json:"activities_input"`
	Notes          string `json:"notes_input"`
	MatchCount     int    `json:"match_count"`
}

// Inputs returns the preferences in docstore.TravelFields order.
func (q TravelQuery) Inputs() []string {
	return []string{q.Location, q.Duration, q.Budget, q.Transportation, q.Accommodation, q.Food, q.Activities, q.Notes}
}

// TravelSearcher embeds travel preferences and runs the multi-vector search.
type TravelSearcher struct {
	embedder Embedder
	logger   *slog.Logger
}

func NewTravelSearcher(embedder Embedder, logger *slog.Logger) *TravelSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &TravelSearcher{embedder: embedder, logger: logger}
}

// Embed returns one vector per preference in fixed order. Preferences that
// carry no meaning are embedded as the placeholder. Any failure fails the
// whole search.
func (s *TravelSearcher) Embed(ctx context.Context, q TravelQuery) (docstore.TravelVectors, error) {
	inputs := q.Inputs()
	vecs := make([][]float32, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		text := embed.OrPlaceholder(in)
		g.Go(func() error {
			v, err := s.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("%s: %w", docstore.TravelFields[i], err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return docstore.TravelVectors{}, agent.Upstream("embedding", err)
	}
	return docstore.TravelVectorsFrom(vecs), nil
}

// Search returns typed packages ranked by the store. Incomplete records are
// skipped with a warning.
func (s *TravelSearcher) Search(ctx context.Context, retriever docstore.Retriever, q TravelQuery) ([]docstore.TravelPackage, error) {
	vectors, err := s.Embed(ctx, q)
	if err != nil {
		return nil, err
	}
	matchCount := q.MatchCount
	if matchCount <= 0 {
		matchCount = docstore.DefaultTravelMatchCount
	}
	records, err := retriever.SearchTravelPackages(ctx, vectors, matchCount)
	if err != nil {
		return nil, fmt.Errorf("search travel packages: %w", err)
	}

	packages := make([]docstore.TravelPackage, 0, len(records))
	for _, rec := range records {
		pkg, err := docstore.ParseTravelPackage(rec)
		if err != nil {
			var inc *docstore.IncompleteError
			if errors.As(err, &inc) {
				s.logger.Warn("skipping incomplete travel package", "id", rec["id"], "missing", inc.Missing)
			} else {
				s.logger.Warn("skipping malformed travel package", "id", rec["id"], "error", err)
			}
			continue
		}
		packages = append(packages, pkg)
	}
	return packages, nil
}

// SearchTravelPackagesTool exposes TravelSearcher to the planner.
type SearchTravelPackagesTool struct {
	searcher  *TravelSearcher
	retriever docstore.Retriever
}

func NewSearchTravelPackagesTool(searcher *TravelSearcher, retriever docstore.Retriever) *SearchTravelPackagesTool {
	return &SearchTravelPackagesTool{searcher: searcher, retriever: retriever}
}

func (t *SearchTravelPackagesTool) Spec() agent.ToolSpec {
	pref := func(name, desc string) agent.Param {
		return agent.Param{Name: name, Type: agent.ParamString, Description: desc}
	}
	return agent.ToolSpec{
		Name:        "SearchTravelPackages",
		Description: "Search for relevant travel packages based on multiple criteria. Every preference is optional. Returns a JSON list of packages, best match first.",
		Category:    CategoryTravel,
		Params: []agent.Param{
			pref("location_input", "Location preferences or destination"),
			pref("duration_input", "Duration preferences"),
			pref("budget_input", "Budget preferences"),
			pref("transportation_input", "Transportation preferences"),
			pref("accommodation_input", "Accommodation preferences"),
			pref("food_input", "Food preferences"),
			pref("activities_input", "Activities preferences"),
			pref("notes_input", "Additional notes or preferences"),
			{Name: "match_count", Type: agent.ParamInteger, Description: "Number of results to return. Defaults to 10."},
		},
		Examples: []map[string]any{{"location_input": "Vietnam", "activities_input": "adventure trips"}},
	}
}

func (t *SearchTravelPackagesTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	q := TravelQuery{
		Location:       req.String("location_input"),
		Duration:       req.String("duration_input"),
		Budget:         req.String("budget_input"),
		Transportation: req.String("transportation_input"),
		Accommodation:  req.String("accommodation_input"),
		Food:           req.String("food_input"),
		Activities:     req.String("activities_input"),
		Notes:          req.String("notes_input"),
		MatchCount:     req.Int("match_count", docstore.DefaultTravelMatchCount),
	}
	packages, err := t.searcher.Search(ctx, t.retriever, q)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	b, err := json.Marshal(packages)
	if err != nil {
		return agent.ToolResponse{}, err
	}
	return agent.ToolResponse{
		Content:  string(b),
		Metadata: map[string]string{"total_count": fmt.Sprint(len(packages))},
	}, nil
}
