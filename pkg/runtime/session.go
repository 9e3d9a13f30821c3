package runtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Protocol-Lattice/meeting-agent/pkg/agent"
	"github.com/Protocol-Lattice/meeting-agent/pkg/auth"
	"github.com/Protocol-Lattice/meeting-agent/pkg/docstore"
	"github.com/Protocol-Lattice/meeting-agent/pkg/memory"
)

// Session is the conversational context of one authenticated user: an agent,
// its conversation state and the retriever bound to the user's identity.
type Session struct {
	id        string
	userID    string
	agent     *agent.Agent
	memory    *memory.ConversationState
	retriever *boundRetriever
	created   time.Time
	lastUsed  atomic.Int64

	// turn holds one token while a turn of this session is queued for or
	// running on the worker pool.
	turn chan struct{}
}

// ID returns the unique identifier associated with the session.
func (s *Session) ID() string { return s.id }

// UserID returns the owning user id.
func (s *Session) UserID() string { return s.userID }

// Agent exposes the session's orchestrator.
func (s *Session) Agent() *agent.Agent { return s.agent }

// History returns the committed messages, oldest first.
func (s *Session) History() []memory.Message { return s.memory.Messages() }

// Identity returns the identity the retriever is currently bound to.
func (s *Session) Identity() auth.Identity { return s.retriever.Identity() }

// CreatedAt returns when the session was provisioned.
func (s *Session) CreatedAt() time.Time { return s.created }

// LastUsed returns when the session last served a request.
func (s *Session) LastUsed() time.Time { return time.Unix(0, s.lastUsed.Load()) }

func (s *Session) touch(now time.Time) { s.lastUsed.Store(now.UnixNano()) }

// acquireTurn waits until no other turn of the session is in flight.
func (s *Session) acquireTurn(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.turn <- struct{}{}:
		return nil
	}
}

func (s *Session) releaseTurn() { <-s.turn }

// boundRetriever forwards to the retriever of the latest credential.
type boundRetriever struct {
	mu      sync.RWMutex
	current docstore.Retriever
}

func newBoundRetriever(r docstore.Retriever) *boundRetriever {
	return &boundRetriever{current: r}
}

func (b *boundRetriever) rebind(r docstore.Retriever) {
	b.mu.Lock()
	b.current = r
	b.mu.Unlock()
}

func (b *boundRetriever) get() docstore.Retriever {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

func (b *boundRetriever) Identity() auth.Identity { return b.get().Identity() }

func (b *boundRetriever) SearchMeetings(ctx context.Context, queryText string, embedding []float32, matchCount int) ([]docstore.Record, error) {
	return b.get().SearchMeetings(ctx, queryText, embedding, matchCount)
}

func (b *boundRetriever) SearchMeetingsByOrganization(ctx context.Context, queryText string, embedding []float32, organization string, matchCount int) ([]docstore.Record, error) {
	return b.get().SearchMeetingsByOrganization(ctx, queryText, embedding, organization, matchCount)
}

func (b *boundRetriever) SearchTravelPackages(ctx context.Context, vectors docstore.TravelVectors, matchCount int) ([]docstore.Record, error) {
	return b.get().SearchTravelPackages(ctx, vectors, matchCount)
}

var _ docstore.Retriever = (*boundRetriever)(nil)
