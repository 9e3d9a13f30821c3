package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore/docstoretest"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
	"github.com/Protocol-Lattice/meeting-agent/pkg/observability"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
	"github.com/Protocol-Lattice/meeting-agent/pkg/runtime"
)

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type stubAccounts struct {
	mu       sync.Mutex
	session  auth.Session
	err      error
	signUps  []string
	password string
}

func (a *stubAccounts) SignInWithPassword(_ context.Context, email, password string) (auth.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.password = password
	return a.session, a.err
}

func (a *stubAccounts) SignUp(_ context.Context, email, password, displayName string) (map[string]any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.password = password
	a.signUps = append(a.signUps, email+"/"+displayName)
	if a.err != nil {
		return nil, a.err
	}
	return map[string]any{"id": "new-user", "email": email}, nil
}

type archivedTurns struct {
	memory.NopArchive
	turns []memory.Turn
	err   error
}

func (a archivedTurns) RecentTurns(context.Context, string, int) ([]memory.Turn, error) {
	return a.turns, a.err
}

type fixture struct {
	rt       *runtime.Runtime
	store    *docstoretest.Store
	accounts *stubAccounts
	registry *prometheus.Registry
	handler  http.Handler
}

func echoPlanner() agent.Planner {
	return agent.PlannerFunc(func(_ context.Context, req agent.PlanRequest) (agent.Decision, error) {
		return agent.Answer("echo: " + req.Messages[len(req.Messages)-1].Content), nil
	})
}

func newFixture(t *testing.T, planner agent.Planner, limit RateLimitConfig, extra ...runtime.Option) *fixture {
	t.Helper()
	store := docstoretest.New()
	store.Identities["good-token"] = auth.Identity{UserID: "u1", Role: "authenticated", Token: "good-token"}
	store.Identities["other-token"] = auth.Identity{UserID: "u2", Role: "authenticated", Token: "other-token"}

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	require.NoError(t, err)

	opts := []runtime.Option{
		runtime.WithPlanner(planner),
		runtime.WithStore(store),
		runtime.WithEmbedder(constEmbedder{}),
		runtime.WithOrganizations(orgs.NewCatalog("test", []string{"Acme Corp"}), nil),
		runtime.WithMetrics(metrics),
	}
	rt, err := runtime.New(append(opts, extra...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	accounts := &stubAccounts{session: auth.Session{
		AccessToken: "good-token",
		Raw:         map[string]any{"access_token": "good-token", "token_type": "bearer"},
	}}
	srv, err := New(Options{
		Runtime:   rt,
		Accounts:  accounts,
		Metrics:   metrics,
		Gatherer:  registry,
		RateLimit: limit,
	})
	require.NoError(t, err)
	return &fixture{rt: rt, store: store, accounts: accounts, registry: registry, handler: srv.Handler()}
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewRequiresRuntime(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})
	rec := f.do(http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRequestIDIsPropagated(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(requestIDHeader))
}

func TestAskRequiresBearerToken(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})

	rec := f.do(http.MethodPost, "/ask", "", `{"query":"hi"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "Bearer token is required")

	rec = f.do(http.MethodPost, "/ask", "forged", `{"query":"hi"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.rt.ActiveSessions())
}

func TestAskAnswersAndRecordsHistory(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})

	rec := f.do(http.MethodPost, "/ask", "good-token", `{"query":"Summarize the Acme meeting"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "echo: Summarize the Acme meeting", decode(t, rec)["response"])

	rec = f.do(http.MethodGet, "/history", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		SessionID string `json:"session_id"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.NotEmpty(t, history.SessionID)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "assistant", history.Messages[1].Role)

	rec = f.do(http.MethodGet, "/history", "other-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["messages"])
}

func TestHistoryServedFromArchiveWithoutSession(t *testing.T) {
	archive := archivedTurns{turns: []memory.Turn{
		{UserID: "u1", User: "second", Assistant: "two"},
		{UserID: "u1", User: "first", Assistant: "one"},
	}}
	f := newFixture(t, echoPlanner(), RateLimitConfig{}, runtime.WithArchive(archive))

	rec := f.do(http.MethodGet, "/history", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		SessionID string           `json:"session_id"`
		Messages  []memory.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Empty(t, history.SessionID)
	assert.Equal(t, []memory.Message{
		memory.UserMessage("first"), memory.AssistantMessage("one"),
		memory.UserMessage("second"), memory.AssistantMessage("two"),
	}, history.Messages)
	assert.Empty(t, f.rt.ActiveSessions())
}

func TestHistoryArchiveFailureIsEmpty(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{}, runtime.WithArchive(archivedTurns{err: errors.New("mongo down")}))
	rec := f.do(http.MethodGet, "/history", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["messages"])
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})

	rec := f.do(http.MethodPost, "/ask", "good-token", `{"query":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/ask", "good-token", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskMapsUpstreamFailure(t *testing.T) {
	failing := agent.PlannerFunc(func(context.Context, agent.PlanRequest) (agent.Decision, error) {
		return agent.Decision{}, errors.New("model unavailable")
	})
	f := newFixture(t, failing, RateLimitConfig{})

	rec := f.do(http.MethodPost, "/ask", "good-token", `{"query":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "model unavailable")
}

func TestAskEmptyAnswerIsUpstreamFailure(t *testing.T) {
	blank := agent.PlannerFunc(func(context.Context, agent.PlanRequest) (agent.Decision, error) {
		return agent.Answer("  "), nil
	})
	f := newFixture(t, blank, RateLimitConfig{})

	rec := f.do(http.MethodPost, "/ask", "good-token", `{"query":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(http.MethodGet, "/history", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["messages"])
}

func TestSearchTravelPackages(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})
	f.store.Travel = []docstore.Record{
		{
			"id": "t1", "title": "Ha Long Bay Cruise", "provider_id": "p1", "location_id": "vn",
			"price": "499.00", "duration_days": 5, "highlights": "['Bay', 'Caves']",
			"description": "cruise", "combined_score": 0.91,
		},
		{"id": "t2", "title": "incomplete"},
	}

	body := `{"location_input":"Vietnam","duration_input":"5 days","budget_input":"$500",` +
		`"transportation_input":"","accommodation_input":"","food_input":"","activities_input":"",` +
		`"notes_input":"","match_count":3}`
	rec := f.do(http.MethodPost, "/search-travel-packages", "good-token", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode(t, rec)
	assert.EqualValues(t, 1, out["total_count"])
	packages := out["packages"].([]any)
	require.Len(t, packages, 1)
	pkg := packages[0].(map[string]any)
	assert.Equal(t, "t1", pkg["id"])
	assert.Equal(t, []any{"Bay", "Caves"}, pkg["highlights"])
	assert.NotContains(t, pkg, "combined_score")

	calls := f.store.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "u1", calls[0].UserID)
	assert.Equal(t, 3, calls[0].MatchCount)
}

func TestSearchTravelEmptyResult(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})
	rec := f.do(http.MethodPost, "/search-travel-packages", "good-token", `{"location_input":"Mars"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, []any{}, out["packages"])
	assert.EqualValues(t, 0, out["total_count"])
}

func TestSearchTravelRequiresBearerToken(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})
	rec := f.do(http.MethodPost, "/search-travel-packages", "", `{"location_input":"Vietnam"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.store.Calls())
}

func TestRateLimitIsPerUser(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/ask", "good-token", `{"query":"one"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/ask", "good-token", `{"query":"two"}`).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/ask", "other-token", `{"query":"one"}`).Code)
}

func TestAuthenticateSignInProvisionsSession(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})

	rec := f.do(http.MethodPost, "/authenticate/signInWithPassword", "", `{"email":"ada@example.com","password":"plain"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.EqualValues(t, 200, out["status_code"])
	assert.Equal(t, false, out["error"])
	assert.Equal(t, "good-token", out["message"].(map[string]any)["access_token"])
	assert.Equal(t, "plain", f.accounts.password)

	_, ok := f.rt.Lookup("u1")
	assert.True(t, ok, "expected the signed-in user's session to be provisioned")
}

func TestAuthenticateSignUp(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})

	rec := f.do(http.MethodPost, "/authenticate/signUpWithPassword", "",
		`{"email":"ada@example.com","password":"pw","display_name":"Ada"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"ada@example.com/Ada"}, f.accounts.signUps)

	rec = f.do(http.MethodPost, "/authenticate/signUpWithPassword", "", `{"email":"ada@example.com","password":"pw"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthenticateErrors(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})

	rec := f.do(http.MethodPost, "/authenticate/magicLink", "", `{"email":"a@b.c"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Authentication type 'magicLink' not recognized", decode(t, rec)["error"])

	rec = f.do(http.MethodPost, "/authenticate/signInWithPassword", "", `{"email":"a@b.c"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required parameters", decode(t, rec)["error"])

	f.accounts.err = fmt.Errorf("sign in: %w", errors.New("Invalid login credentials"))
	rec = f.do(http.MethodPost, "/authenticate/signInWithPassword", "", `{"email":"a@b.c","password":"x"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "Invalid login credentials")
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})
	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Headers", "authorization, content-type")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "authorization, content-type", rec.Header().Get("Access-Control-Allow-Headers"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, echoPlanner(), RateLimitConfig{})
	require.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", "", "").Code)

	rec := f.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `meeting_agent_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&auth.AuthError{Reason: "expired"}, http.StatusUnauthorized},
		{fmt.Errorf("ask: %w", &agent.ValidationError{Field: "query", Reason: "empty"}), http.StatusBadRequest},
		{agent.Upstream("planning", errors.New("boom")), http.StatusBadGateway},
		{fmt.Errorf("%w after 90s", agent.ErrTurnTimeout), http.StatusGatewayTimeout},
		{agent.ErrIterationLimit, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errRateLimited, http.StatusTooManyRequests},
		{statusError(http.StatusNotFound, "nope"), http.StatusNotFound},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
