package session

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ada-analyst/console/internal/models"
)

// DefaultMaxSessions limits concurrent console sessions.
const DefaultMaxSessions = 200

// SessionKeepAliveWindow protects recently used sessions from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// Manager owns the console sessions of all connected users.
type Manager struct {
	sessions    map[string]*Session
	mu          sync.RWMutex
	maxSessions int
	logger      *slog.Logger
	onRemove    func(id string)
}

// NewManager creates a session manager. maxSessions <= 0 uses
// DefaultMaxSessions.
func NewManager(maxSessions int, logger *slog.Logger) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		logger:      logger,
	}
}

// OnRemove registers fn to be called, without the manager lock held, for
// every session that is deleted, expired or evicted.
func (m *Manager) OnRemove(fn func(id string)) {
	m.mu.Lock()
	m.onRemove = fn
	m.mu.Unlock()
}

// Create starts a new idle session.
func (m *Manager) Create() *Session {
	s := New(uuid.New().String())

	m.mu.Lock()
	evicted := m.evictIfFullLocked()
	m.sessions[s.ID()] = s
	active := len(m.sessions)
	hook := m.onRemove
	m.mu.Unlock()

	m.logger.Info("session created", "session", shortID(s.ID()), "active", active)
	notify(hook, evicted)
	return s
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Touch marks a session as in use. It reports whether the session exists.
func (m *Manager) Touch(id string) bool {
	s, ok := m.Get(id)
	if ok {
		s.Touch()
	}
	return ok
}

// Delete removes a session.
func (m *Manager) Delete(id string) bool {
	m.mu.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.sessions, id)
	hook := m.onRemove
	m.mu.Unlock()

	notify(hook, []string{id})
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// CleanupOldSessions removes idle sessions not used within maxAge. Sessions
// with a request in flight, or used within SessionKeepAliveWindow, are kept.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()

	if maxAge < SessionKeepAliveWindow {
		maxAge = SessionKeepAliveWindow
	}
	cutoff := time.Now().Add(-maxAge)

	var removed []string
	for id, s := range m.sessions {
		if busy(s) {
			continue
		}
		last := s.LastAccessed()
		if !last.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed = append(removed, id)
		m.logger.Info("session expired", "session", shortID(id), "idle", time.Since(last).Round(time.Second))
	}
	hook := m.onRemove
	m.mu.Unlock()

	notify(hook, removed)
	return len(removed)
}

// evictIfFullLocked drops the least recently used idle sessions until there
// is room for one more and returns their ids.
func (m *Manager) evictIfFullLocked() []string {
	if len(m.sessions) < m.maxSessions {
		return nil
	}

	type candidate struct {
		id   string
		last time.Time
	}
	var candidates []candidate
	for id, s := range m.sessions {
		if busy(s) {
			continue
		}
		candidates = append(candidates, candidate{id: id, last: s.LastAccessed()})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].last.Before(candidates[j].last)
	})

	var evicted []string
	toFree := len(m.sessions) - m.maxSessions + 1
	for i := 0; i < toFree && i < len(candidates); i++ {
		delete(m.sessions, candidates[i].id)
		evicted = append(evicted, candidates[i].id)
		m.logger.Warn("session evicted", "session", shortID(candidates[i].id))
	}
	return evicted
}

func notify(hook func(string), ids []string) {
	if hook == nil {
		return
	}
	for _, id := range ids {
		hook(id)
	}
}

func busy(s *Session) bool {
	st := s.Snapshot()
	return st.Stage == models.StageUploading || st.Answer.Processing
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
