package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/concurrent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
	"github.com/Protocol-Lattice/meeting-agent/pkg/observability"
	"github.com/Protocol-Lattice/meeting-agent/pkg/orgs"
	"github.com/Protocol-Lattice/meeting-agent/pkg/tools"
)

const (
	DefaultIdleTTL      = 12 * time.Hour
	archiveTimeout      = 5 * time.Second
	minJanitorInterval  = time.Second
	janitorIntervalDiv  = 4
	defaultTurnDeadline = 90 * time.Second

	archivedHistoryTurns = 20
)

// ErrNoSession is returned when a user has no provisioned session.
var ErrNoSession = errors.New("session not found")

// Option configures runtime construction.
type Option func(*config)

type config struct {
	planner         agent.Planner
	store           docstore.Store
	embedder        tools.Embedder
	catalog         *orgs.Catalog
	matcher         tools.OrganizationMatcher
	archive         memory.TranscriptArchive
	counter         memory.TokenCounter
	tokenBudget     int
	maxIterations   int
	turnTimeout     time.Duration
	idleTTL         time.Duration
	janitorInterval time.Duration
	pool            *concurrent.WorkerPool
	systemPrompt    string
	pageSize        int
	now             func() time.Time
	logger          *slog.Logger
	metrics         *observability.Metrics
}

func defaultConfig() *config {
	return &config{
		tokenBudget: memory.DefaultTokenBudget,
		turnTimeout: defaultTurnDeadline,
		idleTTL:     DefaultIdleTTL,
		now:         time.Now,
	}
}

func (c *config) validate() error {
	if c.planner == nil {
		return errors.New("runtime requires a planner")
	}
	if c.store == nil {
		return errors.New("runtime requires a document store")
	}
	if c.embedder == nil {
		return errors.New("runtime requires an embedder")
	}
	return nil
}

// WithPlanner sets the planner shared by all sessions.
func WithPlanner(p agent.Planner) Option {
	return func(c *config) { c.planner = p }
}

// WithStore sets the document store sessions bind their retrievers from.
func WithStore(s docstore.Store) Option {
	return func(c *config) { c.store = s }
}

// WithEmbedder sets the embedding client used by the search capabilities.
func WithEmbedder(e tools.Embedder) Option {
	return func(c *config) { c.embedder = e }
}

// WithOrganizations sets the catalog and the matcher used to validate names.
func WithOrganizations(catalog *orgs.Catalog, matcher tools.OrganizationMatcher) Option {
	return func(c *config) {
		c.catalog = catalog
		c.matcher = matcher
	}
}

// WithArchive archives every committed turn.
func WithArchive(a memory.TranscriptArchive) Option {
	return func(c *config) { c.archive = a }
}

// WithTokenBudget sets the per-session conversation budget and counter.
func WithTokenBudget(budget int, counter memory.TokenCounter) Option {
	return func(c *config) {
		c.tokenBudget = budget
		c.counter = counter
	}
}

// WithMaxIterations caps planning steps per turn.
func WithMaxIterations(n int) Option {
	return func(c *config) { c.maxIterations = n }
}

// WithTurnTimeout bounds a whole turn. Zero disables the bound.
func WithTurnTimeout(d time.Duration) Option {
	return func(c *config) { c.turnTimeout = d }
}

// WithIdleTTL sets how long an unused session is kept.
func WithIdleTTL(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.idleTTL = d
		}
	}
}

// WithJanitorInterval overrides how often idle sessions are swept.
func WithJanitorInterval(d time.Duration) Option {
	return func(c *config) { c.janitorInterval = d }
}

// WithWorkerPool bounds concurrent turns and travel searches.
func WithWorkerPool(p *concurrent.WorkerPool) Option {
	return func(c *config) { c.pool = p }
}

// WithSystemPrompt replaces the default agent instructions.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) { c.systemPrompt = prompt }
}

// WithPageSize sets how many meetings are presented per page.
func WithPageSize(n int) Option {
	return func(c *config) { c.pageSize = n }
}

// WithClock injects the clock used by ExtractCurrentDate and idle tracking.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the runtime logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMetrics reports sessions, pool pressure, turns and tool calls.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// Runtime owns the sessions of all authenticated users and the resources they
// share: planner, store, embedder, organization validator and worker pool.
type Runtime struct {
	cfg           *config
	organizations *tools.ValidateOrganizationTool
	travel        *tools.TravelSearcher
	sessions      *sessionManager

	stop      chan struct{}
	stopOnce  sync.Once
	janitorWG sync.WaitGroup
}

// New builds a runtime and starts its idle-session janitor.
func New(opts ...Option) (*Runtime, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.archive == nil {
		cfg.archive = memory.NopArchive{}
	}
	if cfg.counter == nil {
		cfg.counter = memory.ApproxCounter{}
	}
	if cfg.pool == nil {
		cfg.pool = concurrent.NewWorkerPool(concurrent.DefaultWorkers)
	}
	if cfg.janitorInterval <= 0 {
		cfg.janitorInterval = cfg.idleTTL / janitorIntervalDiv
	}
	if cfg.janitorInterval < minJanitorInterval {
		cfg.janitorInterval = minJanitorInterval
	}

	rt := &Runtime{
		cfg:           cfg,
		organizations: tools.NewValidateOrganizationTool(cfg.catalog, cfg.matcher, cfg.logger),
		travel:        tools.NewTravelSearcher(cfg.embedder, cfg.logger),
		sessions:      newSessionManager(),
		stop:          make(chan struct{}),
	}
	rt.janitorWG.Add(1)
	go rt.janitor()
	return rt, nil
}

// Session returns the session of identity's user, provisioning it on first
// use. The session's retriever is rebound to identity so the freshest
// credential reaches the store.
func (rt *Runtime) Session(identity auth.Identity) (*Session, error) {
	userID := strings.TrimSpace(identity.UserID)
	if userID == "" {
		return nil, &auth.AuthError{Reason: "identity has no user id"}
	}
	session, created, err := rt.sessions.getOrCreate(userID, func() (*Session, error) {
		return rt.newSession(identity)
	})
	if err != nil {
		return nil, err
	}
	if created {
		rt.cfg.logger.Info("session provisioned", "user_id", userID, "session_id", session.ID())
		rt.cfg.metrics.SetActiveSessions(rt.sessions.len())
	} else {
		session.retriever.rebind(rt.cfg.store.Bind(identity))
	}
	session.touch(rt.cfg.now())
	return session, nil
}

func (rt *Runtime) newSession(identity auth.Identity) (*Session, error) {
	id := uuid.NewString()
	retriever := newBoundRetriever(rt.cfg.store.Bind(identity))
	registry, err := tools.NewRegistry(tools.Dependencies{
		Now:           rt.cfg.now,
		Catalog:       rt.cfg.catalog,
		Organizations: rt.organizations,
		Embedder:      rt.cfg.embedder,
		Retriever:     retriever,
		Travel:        rt.travel,
		PageSize:      rt.cfg.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("build capabilities: %w", err)
	}
	state := memory.NewConversationState(rt.cfg.tokenBudget, rt.cfg.counter)

	var observer agent.Observer
	if rt.cfg.metrics != nil {
		observer = rt.cfg.metrics
	}
	a, err := agent.New(agent.Options{
		Planner:       rt.cfg.planner,
		Registry:      registry,
		Memory:        state,
		SystemPrompt:  rt.cfg.systemPrompt,
		SessionID:     id,
		UserID:        identity.UserID,
		MaxIterations: rt.cfg.maxIterations,
		TurnTimeout:   rt.cfg.turnTimeout,
		Logger:        rt.cfg.logger.With("session_id", id, "user_id", identity.UserID),
		Observer:      observer,
		OnTurn:        rt.archiveTurn,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise agent: %w", err)
	}
	session := &Session{
		id:        id,
		userID:    identity.UserID,
		agent:     a,
		memory:    state,
		retriever: retriever,
		created:   rt.cfg.now(),
		turn:      make(chan struct{}, 1),
	}
	session.touch(session.created)
	return session, nil
}

// archiveTurn never fails the turn: errors are logged only.
func (rt *Runtime) archiveTurn(ctx context.Context, turn memory.Turn) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()
	if err := rt.cfg.archive.ArchiveTurn(ctx, turn); err != nil {
		observability.LoggerFromContext(ctx).Warn("archive turn failed",
			"user_id", turn.UserID, "session_id", turn.SessionID, "error", err)
	}
}

// Ask runs one turn for identity's session on the worker pool. Turns of one
// session queue on the session before they take a pool slot, so a user with
// several requests in flight occupies at most one worker.
func (rt *Runtime) Ask(ctx context.Context, identity auth.Identity, input string) (string, error) {
	session, err := rt.Session(identity)
	if err != nil {
		return "", err
	}
	if err := session.acquireTurn(ctx); err != nil {
		return "", err
	}
	defer session.releaseTurn()

	reply, err := concurrent.Submit(ctx, rt.cfg.pool, func(ctx context.Context) (string, error) {
		rt.cfg.metrics.SetPoolWaiting(rt.cfg.pool.Waiting())
		return session.agent.Respond(ctx, input)
	})
	session.touch(rt.cfg.now())
	return reply, err
}

// SearchTravel runs the travel capability directly for identity.
func (rt *Runtime) SearchTravel(ctx context.Context, identity auth.Identity, q tools.TravelQuery) ([]docstore.TravelPackage, error) {
	retriever := rt.cfg.store.Bind(identity)
	return concurrent.Submit(ctx, rt.cfg.pool, func(ctx context.Context) ([]docstore.TravelPackage, error) {
		return rt.travel.Search(ctx, retriever, q)
	})
}

// History returns the committed conversation of userID. Without a live
// session it is rebuilt from the newest archived turns, oldest first.
// ErrNoSession is returned when neither exists.
func (rt *Runtime) History(ctx context.Context, userID string) ([]memory.Message, error) {
	userID = strings.TrimSpace(userID)
	if session, ok := rt.sessions.get(userID); ok {
		return session.History(), nil
	}
	turns, err := rt.cfg.archive.RecentTurns(ctx, userID, archivedHistoryTurns)
	if err != nil {
		return nil, fmt.Errorf("archived history: %w", err)
	}
	if len(turns) == 0 {
		return nil, ErrNoSession
	}
	msgs := make([]memory.Message, 0, 2*len(turns))
	for i := len(turns) - 1; i >= 0; i-- {
		msgs = append(msgs, memory.UserMessage(turns[i].User), memory.AssistantMessage(turns[i].Assistant))
	}
	return msgs, nil
}

// Lookup returns the session of userID without provisioning one.
func (rt *Runtime) Lookup(userID string) (*Session, bool) {
	return rt.sessions.get(strings.TrimSpace(userID))
}

// ActiveSessions returns the user ids with a live session, sorted.
func (rt *Runtime) ActiveSessions() []string {
	return rt.sessions.activeIDs()
}

// Catalog returns the organization catalog.
func (rt *Runtime) Catalog() *orgs.Catalog { return rt.cfg.catalog }

// Store returns the document store.
func (rt *Runtime) Store() docstore.Store { return rt.cfg.store }

// EvictIdle removes sessions unused for longer than the idle TTL as of now.
func (rt *Runtime) EvictIdle(now time.Time) []string {
	evicted := rt.sessions.evictIdle(now.Add(-rt.cfg.idleTTL))
	if len(evicted) > 0 {
		rt.cfg.logger.Info("idle sessions evicted", "count", len(evicted))
		rt.cfg.metrics.SetActiveSessions(rt.sessions.len())
	}
	return evicted
}

func (rt *Runtime) janitor() {
	defer rt.janitorWG.Done()
	ticker := time.NewTicker(rt.cfg.janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rt.stop:
			return
		case <-ticker.C:
			rt.EvictIdle(rt.cfg.now())
		}
	}
}

// Close stops the janitor and closes the archive and the store.
func (rt *Runtime) Close(ctx context.Context) error {
	var err error
	rt.stopOnce.Do(func() {
		close(rt.stop)
		rt.janitorWG.Wait()
		err = rt.cfg.archive.Close(ctx)
		rt.cfg.store.Close()
	})
	return err
}
