// Package docstoretest provides an in-memory docstore.Store for tests and
// local runs.
package docstoretest

import (
	"context"
	"sync"

	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
)

// Call records one retriever invocation.
type Call struct {
	Method       string
	UserID       string
	QueryText    string
	Embedding    []float32
	Organization string
	Travel       docstore.TravelVectors
	MatchCount   int
}

// Store returns canned records and records every call.
type Store struct {
	mu sync.Mutex

	Meetings       []docstore.Record
	ByOrganization map[string][]docstore.Record
	Travel         []docstore.Record
	Err            error
	Identities     map[string]auth.Identity

	calls []Call
}

// New creates an empty fake store.
func New() *Store {
	return &Store{ByOrganization: map[string][]docstore.Record{}, Identities: map[string]auth.Identity{}}
}

// ResolveIdentity maps known credentials to identities.
func (s *Store) ResolveIdentity(_ context.Context, credential string) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if credential == "" {
		return auth.Identity{}, &auth.AuthError{Reason: "no bearer token", Err: auth.ErrMissingCredential}
	}
	id, ok := s.Identities[credential]
	if !ok {
		return auth.Identity{}, &auth.AuthError{Reason: "invalid token"}
	}
	return id, nil
}

func (s *Store) Bind(identity auth.Identity) docstore.Retriever {
	return &retriever{store: s, identity: identity}
}

func (s *Store) Close() {}

// Calls returns the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func (s *Store) record(c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)
	return s.Err
}

func copyRecords(in []docstore.Record) []docstore.Record {
	out := make([]docstore.Record, len(in))
	for i, r := range in {
		cp := make(docstore.Record, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

type retriever struct {
	store    *Store
	identity auth.Identity
}

func (r *retriever) Identity() auth.Identity { return r.identity }

func (r *retriever) SearchMeetings(_ context.Context, queryText string, embedding []float32, matchCount int) ([]docstore.Record, error) {
	if err := r.store.record(Call{Method: "SearchMeetings", UserID: r.identity.UserID, QueryText: queryText, Embedding: embedding, MatchCount: matchCount}); err != nil {
		return nil, err
	}
	return copyRecords(r.store.Meetings), nil
}

func (r *retriever) SearchMeetingsByOrganization(_ context.Context, queryText string, embedding []float32, organization string, matchCount int) ([]docstore.Record, error) {
	if err := r.store.record(Call{Method: "SearchMeetingsByOrganization", UserID: r.identity.UserID, QueryText: queryText, Embedding: embedding, Organization: organization, MatchCount: matchCount}); err != nil {
		return nil, err
	}
	return copyRecords(r.store.ByOrganization[organization]), nil
}

func (r *retriever) SearchTravelPackages(_ context.Context, vectors docstore.TravelVectors, matchCount int) ([]docstore.Record, error) {
	if err := r.store.record(Call{Method: "SearchTravelPackages", UserID: r.identity.UserID, Travel: vectors, MatchCount: matchCount}); err != nil {
		return nil, err
	}
	records := copyRecords(r.store.Travel)
	docstore.SortByScore(records)
	return records, nil
}
