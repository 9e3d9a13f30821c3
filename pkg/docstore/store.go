// Package docstore is the retrieval backend: hybrid meeting search and
// multi-vector travel package search, executed under the caller's identity.
package docstore

import (
	"context"
	"sort"

	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
)

const (
	DefaultMeetingMatchCount = 20
	DefaultTravelMatchCount  = 10
)

// ScoreColumn is the combined ranking score returned by the travel search.
const ScoreColumn = "combined_score"

// Record is one flat row as returned by the store.
type Record map[string]any

// TravelFields lists the travel preference dimensions in the order the search
// function expects their vectors.
var TravelFields = []string{
	"location",
	"duration",
	"budget",
	"transportation",
	"accommodation",
	"food",
	"activities",
	"notes",
}

// TravelVectors holds one embedding per travel preference dimension.
type TravelVectors struct {
	Location       []float32
	Duration       []float32
	Budget         []float32
	Transportation []float32
	Accommodation  []float32
	Food           []float32
	Activities     []float32
	Notes          []float32
}

// Ordered returns the vectors in TravelFields order.
func (v TravelVectors) Ordered() [][]float32 {
	return [][]float32{
		v.Location, v.Duration, v.Budget, v.Transportation,
		v.Accommodation, v.Food, v.Activities, v.Notes,
	}
}

// TravelVectorsFrom builds TravelVectors from a slice in TravelFields order.
func TravelVectorsFrom(vecs [][]float32) TravelVectors {
	get := func(i int) []float32 {
		if i < len(vecs) {
			return vecs[i]
		}
		return nil
	}
	return TravelVectors{
		Location:       get(0),
		Duration:       get(1),
		Budget:         get(2),
		Transportation: get(3),
		Accommodation:  get(4),
		Food:           get(5),
		Activities:     get(6),
		Notes:          get(7),
	}
}

// Retriever runs read-only searches on behalf of one identity.
type Retriever interface {
	Identity() auth.Identity
	SearchMeetings(ctx context.Context, queryText string, embedding []float32, matchCount int) ([]Record, error)
	SearchMeetingsByOrganization(ctx context.Context, queryText string, embedding []float32, organization string, matchCount int) ([]Record, error)
	SearchTravelPackages(ctx context.Context, vectors TravelVectors, matchCount int) ([]Record, error)
}

// Store resolves credentials and hands out per-identity retrievers.
type Store interface {
	ResolveIdentity(ctx context.Context, credential string) (auth.Identity, error)
	Bind(identity auth.Identity) Retriever
	Close()
}

// SortByScore orders records by ScoreColumn descending unless they already are.
// Records without a numeric score keep their relative order after scored ones.
func SortByScore(records []Record) {
	scored := false
	for _, r := range records {
		if _, ok := numeric(r[ScoreColumn]); ok {
			scored = true
			break
		}
	}
	if !scored {
		return
	}
	less := func(i, j int) bool {
		a, aok := numeric(records[i][ScoreColumn])
		b, bok := numeric(records[j][ScoreColumn])
		if aok != bok {
			return aok
		}
		return a > b
	}
	if sort.SliceIsSorted(records, less) {
		return
	}
	sort.SliceStable(records, less)
}

func matchCountOr(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
