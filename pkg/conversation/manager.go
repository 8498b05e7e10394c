package conversation

import (
	"sync"
	"time"
)

// Sessions beyond this are evicted least-recently-used, so anonymous
// clients minting session ids cannot grow the map without bound.
const defaultMaxSessions = 1000

type managedSession struct {
	session  *Session
	lastSeen time.Time
}

// Manager hands out one Session per conversation key, creating them lazily.
type Manager struct {
	orchestrator Orchestrator
	related      RelatedFetcher
	threadRepo   ThreadRepository
	maxSessions  int

	mu       sync.Mutex
	sessions map[string]*managedSession
}

func NewManager(orchestrator Orchestrator, related RelatedFetcher, threadRepo ThreadRepository) *Manager {
	return &Manager{
		orchestrator: orchestrator,
		related:      related,
		threadRepo:   threadRepo,
		maxSessions:  defaultMaxSessions,
		sessions:     make(map[string]*managedSession),
	}
}

// Session returns the session for key, creating it bound to userID on first
// use. The user identity of an existing session is not changed.
func (m *Manager) Session(key, userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[key]; ok {
		entry.lastSeen = time.Now()
		return entry.session
	}

	if len(m.sessions) >= m.maxSessions {
		m.evictOldestLocked()
	}

	s := NewSession(m.orchestrator, m.related, m.threadRepo, userID)
	m.sessions[key] = &managedSession{session: s, lastSeen: time.Now()}
	return s
}

func (m *Manager) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range m.sessions {
		if oldestKey == "" || entry.lastSeen.Before(oldest) {
			oldestKey = key
			oldest = entry.lastSeen
		}
	}
	if oldestKey != "" {
		delete(m.sessions, oldestKey)
	}
}
