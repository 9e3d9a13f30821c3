package memory

import "sync"

// DefaultTokenBudget matches the default chat memory limit of the service.
const DefaultTokenBudget = 100000

// ConversationState is a token-bounded, append-only log of messages owned by one
// session. When an append pushes the log over budget the oldest turns are
// evicted until it fits. A turn starts at a user message and runs to the next
// one, so a question never loses its answer and the log always opens with a
// user message. The newest turn is always retained, even when it alone exceeds
// the budget.
type ConversationState struct {
	mu       sync.RWMutex
	budget   int
	counter  TokenCounter
	messages []Message
	sizes    []int
	total    int
}

// NewConversationState creates an empty state. A non-positive budget selects
// DefaultTokenBudget; a nil counter selects ApproxCounter.
func NewConversationState(budget int, counter TokenCounter) *ConversationState {
	if budget <= 0 {
		budget = DefaultTokenBudget
	}
	if counter == nil {
		counter = ApproxCounter{}
	}
	return &ConversationState{budget: budget, counter: counter}
}

// Append adds msgs in order as one unit and then enforces the budget.
func (s *ConversationState) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		size := MessageTokens(s.counter, m)
		s.messages = append(s.messages, m)
		s.sizes = append(s.sizes, size)
		s.total += size
	}
	s.evictLocked()
}

func (s *ConversationState) evictLocked() {
	drop := 0
	for s.total > s.budget {
		next := s.nextTurnLocked(drop)
		if next < 0 {
			break
		}
		for ; drop < next; drop++ {
			s.total -= s.sizes[drop]
		}
	}
	if drop == 0 {
		return
	}
	s.messages = append([]Message(nil), s.messages[drop:]...)
	s.sizes = append([]int(nil), s.sizes[drop:]...)
}

// nextTurnLocked returns the index of the first user message after from, or -1
// when the turn at from is the newest.
func (s *ConversationState) nextTurnLocked(from int) int {
	for i := from + 1; i < len(s.messages); i++ {
		if s.messages[i].Role == RoleUser {
			return i
		}
	}
	return -1
}

// Messages returns a copy of the retained messages, oldest first.
func (s *ConversationState) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Len returns the number of retained messages.
func (s *ConversationState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Tokens returns the serialized size of the retained messages.
func (s *ConversationState) Tokens() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Budget returns the configured token budget.
func (s *ConversationState) Budget() int { return s.budget }
