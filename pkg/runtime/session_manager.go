package runtime

import (
	"sort"
	"sync"
	"time"
)

// sessionManager holds one Session per user id.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionManager() *sessionManager {
	return &sessionManager{sessions: make(map[string]*Session)}
}

// getOrCreate returns the session for userID, building it with create when
// absent. create runs under the write lock so concurrent first requests share
// one session.
func (m *sessionManager) getOrCreate(userID string, create func() (*Session, error)) (*Session, bool, error) {
	m.mu.RLock()
	session, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return session, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[userID]; ok {
		return session, false, nil
	}
	session, err := create()
	if err != nil {
		return nil, false, err
	}
	m.sessions[userID] = session
	return session, true, nil
}

func (m *sessionManager) get(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[userID]
	return session, ok
}

// evictIdle drops sessions unused since before cutoff and returns their user ids.
func (m *sessionManager) evictIdle(cutoff time.Time) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var evicted []string
	for id, s := range m.sessions {
		if s.LastUsed().Before(cutoff) {
			delete(m.sessions, id)
			evicted = append(evicted, id)
		}
	}
	sort.Strings(evicted)
	return evicted
}

func (m *sessionManager) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *sessionManager) activeIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
