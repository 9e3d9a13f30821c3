package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore/docstoretest"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory/embed"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
)

// countingEmbedder returns a vector whose first element identifies the input.
type countingEmbedder struct {
	mu     sync.Mutex
	inputs []string
	err    error
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, text)
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (e *countingEmbedder) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.inputs...)
}

type stubMatcher struct {
	answers map[string]string
	err     error
	calls   int
}

func (m *stubMatcher) MatchOrganization(_ context.Context, input string, candidates []string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.answers[input], nil
}

func meeting(title, date string) docstore.Record {
	return docstore.Record{"title": title, "start_date": date, "summary": "summary of " + title, "combined_score": 0.5}
}

func TestCurrentDateToolUsesInjectedClock(t *testing.T) {
	now := time.Date(2025, 4, 15, 9, 30, 0, 0, time.UTC)
	tool := NewCurrentDateTool(func() time.Time { return now })
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != "2025-04-15T09:30:00Z" {
		t.Fatalf("unexpected date %q", resp.Content)
	}
	if len(tool.Spec().Params) != 0 {
		t.Fatalf("ExtractCurrentDate takes no params")
	}
}

func TestValidateOrganizationReturnsCatalogEntry(t *testing.T) {
	catalog := orgs.NewCatalog("test", []string{"ACME Corp", "Globex"})
	matcher := &stubMatcher{answers: map[string]string{"Acme Corp": "ACME Corp"}}
	tool := NewValidateOrganizationTool(catalog, matcher, nil)

	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"organization_input": "Acme Corp"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != `{"organization_name":"ACME Corp"}` {
		t.Fatalf("unexpected output %s", resp.Content)
	}

	if _, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"organization_input": " acme corp "}}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if matcher.calls != 1 {
		t.Fatalf("expected cached answer, matcher called %d times", matcher.calls)
	}
}

func TestValidateOrganizationAbsent(t *testing.T) {
	catalog := orgs.NewCatalog("test", []string{"ACME Corp"})
	cases := map[string]struct {
		catalog *orgs.Catalog
		matcher *stubMatcher
	}{
		"outside catalog": {catalog, &stubMatcher{answers: map[string]string{"Zzyzx Unknown Org": "Zzyzx"}}},
		"no match":        {catalog, &stubMatcher{}},
		"matcher error":   {catalog, &stubMatcher{err: errors.New("model unavailable")}},
		"empty catalog":   {orgs.NewCatalog("empty", nil), &stubMatcher{answers: map[string]string{"Zzyzx Unknown Org": "ACME Corp"}}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tool := NewValidateOrganizationTool(tc.catalog, tc.matcher, nil)
			resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"organization_input": "Zzyzx Unknown Org"}})
			if err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if resp.Content != `{"organization_name":null}` {
				t.Fatalf("expected absent marker, got %s", resp.Content)
			}
		})
	}
}

func TestFormatMeetingsPagesFiveAndInvitesMore(t *testing.T) {
	var records []docstore.Record
	for i := 1; i <= 8; i++ {
		records = append(records, meeting(fmt.Sprintf("M%d", i), fmt.Sprintf("2025-03-%02d", i)))
	}

	out := FormatMeetings(records, 0, 5)
	if strings.Count(out, "Document ") != 5 {
		t.Fatalf("expected 5 documents, got:\n%s", out)
	}
	if !strings.Contains(out, "see more") || !strings.Contains(out, "offset=5") {
		t.Fatalf("expected see-more invitation, got:\n%s", out)
	}
	if strings.Index(out, "title: M8") > strings.Index(out, "title: M7") {
		t.Fatalf("expected newest first:\n%s", out)
	}
	if strings.Contains(out, "title: M3") {
		t.Fatalf("oldest meetings belong on the next page:\n%s", out)
	}
	if strings.Contains(out, "combined_score") {
		t.Fatalf("score must not be shown:\n%s", out)
	}

	next := FormatMeetings(records, 5, 5)
	if strings.Count(next, "Document ") != 3 || strings.Contains(next, "see more") {
		t.Fatalf("unexpected second page:\n%s", next)
	}
	if !strings.Contains(next, "Document 6:") || !strings.Contains(next, "title: M3") {
		t.Fatalf("second page should continue numbering:\n%s", next)
	}
}

func TestFormatMeetingsShowsAllWhenFew(t *testing.T) {
	records := []docstore.Record{meeting("A", "2025-01-01"), meeting("B", "2025-02-01"), meeting("C", "2025-03-01")}
	out := FormatMeetings(records, 0, 5)
	if strings.Count(out, "Document ") != 3 || strings.Contains(out, "see more") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestFormatMeetingsEmptyAndExhausted(t *testing.T) {
	if FormatMeetings(nil, 0, 5) != NoDocuments {
		t.Fatalf("expected no-documents sentinel")
	}
	out := FormatMeetings([]docstore.Record{meeting("A", "2025-01-01")}, 5, 5)
	if !strings.HasPrefix(out, "No more documents") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestFormatMeetingsRemovesLinksAndInternalColumns(t *testing.T) {
	rec := docstore.Record{
		"title":         "Kickoff",
		"start_date":    "2025-03-10T10:00:00Z",
		"summary":       "Notes at https://docs.example.com/abc and www.example.org/x were shared",
		"recording_url": "https://zoom.us/rec/1",
		"embedding":     []any{0.1, 0.2},
		"similarity":    0.8,
		"rrf_score":     0.1,
		"organization":  "ACME Corp",
		"duration":      "45 minutes",
		"key_decisions": []any{"ship it"},
	}
	out := FormatMeetings([]docstore.Record{rec}, 0, 5)
	for _, banned := range []string{"http", "www.", "recording_url", "embedding", "similarity", "rrf_score"} {
		if strings.Contains(out, banned) {
			t.Fatalf("output must not contain %q:\n%s", banned, out)
		}
	}
	if !strings.Contains(out, "summary: Notes at and were shared") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(out, `key_decisions: ["ship it"]`) {
		t.Fatalf("unexpected decisions:\n%s", out)
	}
}

func TestHiddenColumnMatchesWholeSegments(t *testing.T) {
	hidden := []string{"url", "recording_url", "meeting_link", "Join-Link", "links", "doc_href", "title_embedding"}
	for _, k := range hidden {
		if !hiddenColumn(k) {
			t.Fatalf("expected %q to be hidden", k)
		}
	}
	shown := []string{"hourly_rate", "linked_project", "curly_brace", "title", "duration"}
	for _, k := range shown {
		if hiddenColumn(k) {
			t.Fatalf("expected %q to be shown", k)
		}
	}

	out := FormatMeetings([]docstore.Record{{
		"title":          "Budget review",
		"hourly_rate":    "120",
		"linked_project": "Apollo",
		"meeting_link":   "Join at the usual room",
	}}, 0, 5)
	if !strings.Contains(out, "hourly_rate: 120") || !strings.Contains(out, "linked_project: Apollo") {
		t.Fatalf("business columns were dropped:\n%s", out)
	}
	if strings.Contains(out, "meeting_link") {
		t.Fatalf("link column leaked:\n%s", out)
	}
}

func TestSortByStartDatePutsUndatedLast(t *testing.T) {
	records := []docstore.Record{
		{"title": "undated"},
		{"title": "old", "start_date": "2024-01-01"},
		{"title": "new", "start_date": time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"title": "bad", "start_date": "someday"},
	}
	SortByStartDate(records)
	got := []string{}
	for _, r := range records {
		got = append(got, r["title"].(string))
	}
	if strings.Join(got, ",") != "new,old,undated,bad" {
		t.Fatalf("unexpected order %v", got)
	}
}

func newRetriever(store *docstoretest.Store) docstore.Retriever {
	return store.Bind(auth.Identity{UserID: "user-1"})
}

func TestSearchMeetingsIsIdempotent(t *testing.T) {
	store := docstoretest.New()
	store.Meetings = []docstore.Record{meeting("A", "2025-01-01"), meeting("B", "2025-02-01")}
	emb := &countingEmbedder{}
	tool := NewSearchMeetingsTool(emb, newRetriever(store), 0)

	req := agent.ToolRequest{Arguments: map[string]any{"user_input": "budget review"}}
	first, err := tool.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	second, err := tool.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if first.Content != second.Content {
		t.Fatalf("repeated searches must match:\n%s\n---\n%s", first.Content, second.Content)
	}
	calls := store.Calls()
	if len(calls) != 2 || calls[0].QueryText != "budget review" || calls[0].MatchCount != docstore.DefaultMeetingMatchCount {
		t.Fatalf("unexpected store calls %+v", calls)
	}
	if len(calls[0].Embedding) == 0 {
		t.Fatalf("expected embedding to reach the store")
	}
}

func TestSearchMeetingsNoDocuments(t *testing.T) {
	tool := NewSearchMeetingsTool(&countingEmbedder{}, newRetriever(docstoretest.New()), 0)
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"user_input": "anything"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != NoDocuments {
		t.Fatalf("unexpected output %q", resp.Content)
	}
}

func TestSearchMeetingsEmbeddingFailureIsUpstream(t *testing.T) {
	tool := NewSearchMeetingsTool(&countingEmbedder{err: errors.New("timeout")}, newRetriever(docstoretest.New()), 0)
	_, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"user_input": "anything"}})
	var up *agent.UpstreamModelError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamModelError, got %v", err)
	}
}

func TestSearchMeetingsStoreFailureIsToolError(t *testing.T) {
	store := docstoretest.New()
	store.Err = errors.New("connection refused")
	tool := NewSearchMeetingsTool(&countingEmbedder{}, newRetriever(store), 0)
	_, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"user_input": "anything"}})
	var up *agent.UpstreamModelError
	if err == nil || errors.As(err, &up) {
		t.Fatalf("store failures must be plain tool errors, got %v", err)
	}
}

func TestSearchMeetingsByOrganizationRequiresCatalogEntry(t *testing.T) {
	store := docstoretest.New()
	catalog := orgs.NewCatalog("test", []string{"ACME Corp"})
	tool := NewSearchMeetingsByOrganizationTool(&countingEmbedder{}, newRetriever(store), catalog, 0)

	_, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"user_input": "q", "organization_input": "acme"}})
	if !errors.Is(err, ErrOrganizationNotValidated) {
		t.Fatalf("expected ErrOrganizationNotValidated, got %v", err)
	}
	if len(store.Calls()) != 0 {
		t.Fatalf("store must not be called with an unvalidated organization")
	}

	store.ByOrganization["ACME Corp"] = []docstore.Record{meeting("Acme sync", "2025-03-12")}
	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{"user_input": "q", "organization_input": "ACME Corp"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(resp.Content, "Acme sync") {
		t.Fatalf("unexpected output %s", resp.Content)
	}
}

func travelRecord(id string, score float64) docstore.Record {
	return docstore.Record{
		"id": id, "title": "Trip " + id, "provider_id": "p", "location_id": "l",
		"price": "499.00", "duration_days": 5, "highlights": "['Ha Long Bay', 'Kayaking']",
		"description": "fun", "image_url": nil, "combined_score": score,
	}
}

func TestTravelSearchEmbedsAllEightSlots(t *testing.T) {
	store := docstoretest.New()
	store.Travel = []docstore.Record{travelRecord("b", 0.4), travelRecord("a", 0.9)}
	emb := &countingEmbedder{}
	tool := NewSearchTravelPackagesTool(NewTravelSearcher(emb, nil), newRetriever(store))

	resp, err := tool.Invoke(context.Background(), agent.ToolRequest{Arguments: map[string]any{
		"location_input":   "Vietnam",
		"activities_input": "adventure trips",
		"budget_input":     " ",
		"match_count":      10,
	}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	inputs := emb.calls()
	if len(inputs) != 8 {
		t.Fatalf("expected 8 embedding calls, got %d: %v", len(inputs), inputs)
	}
	placeholders := 0
	for _, in := range inputs {
		if in == embed.Placeholder {
			placeholders++
		}
	}
	if placeholders != 6 {
		t.Fatalf("expected 6 placeholder embeddings, got %d: %v", placeholders, inputs)
	}

	calls := store.Calls()
	if len(calls) != 1 || calls[0].MatchCount != 10 {
		t.Fatalf("unexpected store calls %+v", calls)
	}
	ordered := calls[0].Travel.Ordered()
	wantLens := []float32{7, 12, 12, 12, 12, 12, 15, 12}
	for i, v := range ordered {
		if len(v) == 0 || v[0] != wantLens[i] {
			t.Fatalf("vector %d (%s) out of order: %v", i, docstore.TravelFields[i], v)
		}
	}

	var pkgs []docstore.TravelPackage
	if err := json.Unmarshal([]byte(resp.Content), &pkgs); err != nil {
		t.Fatalf("output is not a package list: %v\n%s", err, resp.Content)
	}
	if len(pkgs) != 2 || pkgs[0].ID != "a" {
		t.Fatalf("expected packages ranked by score, got %+v", pkgs)
	}
	if strings.Contains(resp.Content, "combined_score") {
		t.Fatalf("score must be stripped: %s", resp.Content)
	}
}

func TestTravelSearchSkipsIncompletePackages(t *testing.T) {
	store := docstoretest.New()
	broken := travelRecord("broken", 0.8)
	delete(broken, "price")
	store.Travel = []docstore.Record{travelRecord("ok", 0.5), broken}
	searcher := NewTravelSearcher(&countingEmbedder{}, nil)

	pkgs, err := searcher.Search(context.Background(), newRetriever(store), TravelQuery{Location: "Vietnam"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(pkgs) != 1 || pkgs[0].ID != "ok" {
		t.Fatalf("expected only the complete package, got %+v", pkgs)
	}
	if store.Calls()[0].MatchCount != docstore.DefaultTravelMatchCount {
		t.Fatalf("expected default match count")
	}
}

func TestTravelSearchEmbeddingFailureFailsSearch(t *testing.T) {
	store := docstoretest.New()
	searcher := NewTravelSearcher(&countingEmbedder{err: errors.New("quota exceeded")}, nil)
	_, err := searcher.Search(context.Background(), newRetriever(store), TravelQuery{Location: "Vietnam"})
	var up *agent.UpstreamModelError
	if !errors.As(err, &up) {
		t.Fatalf("expected UpstreamModelError, got %v", err)
	}
	if len(store.Calls()) != 0 {
		t.Fatalf("store must not be searched after an embedding failure")
	}
}

func TestNewRegistryRegistersAllCapabilities(t *testing.T) {
	catalog := orgs.NewCatalog("test", []string{"ACME Corp"})
	reg, err := NewRegistry(Dependencies{
		Catalog:       catalog,
		Organizations: NewValidateOrganizationTool(catalog, &stubMatcher{}, nil),
		Embedder:      &countingEmbedder{},
		Retriever:     newRetriever(docstoretest.New()),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	want := []string{"ExtractCurrentDate", "ValidateOrganization", "SearchMeetings", "SearchMeetingsByOrganization", "SearchTravelPackages"}
	specs := reg.Specs()
	if len(specs) != len(want) {
		t.Fatalf("expected %d capabilities, got %d", len(want), len(specs))
	}
	for i, name := range want {
		if specs[i].Name != name {
			t.Fatalf("capability %d: want %s, got %s", i, name, specs[i].Name)
		}
	}
	if cats := reg.Categories(); strings.Join(cats, ",") != "date,organization,meetings,travel" {
		t.Fatalf("unexpected categories %v", cats)
	}
	if _, err := NewRegistry(Dependencies{}); err == nil {
		t.Fatalf("expected error for missing dependencies")
	}
}
