package stream

import (
	"slices"
	"sync"
)

// Sessions tracks live sessions. Terminated sessions drop out on their own.
type Sessions struct {
	mu sync.RWMutex
	m  map[string]*Session
}

// NewSessions creates an empty set.
func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]*Session)}
}

// Add tracks s until it terminates.
func (ss *Sessions) Add(s *Session) {
	ss.mu.Lock()
	ss.m[s.ID()] = s
	ss.mu.Unlock()

	go func() {
		<-s.Done()
		ss.mu.Lock()
		delete(ss.m, s.ID())
		ss.mu.Unlock()
	}()
}

// Get returns the live session with the given id.
func (ss *Sessions) Get(id string) (*Session, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	s, ok := ss.m[id]
	return s, ok
}

// Len returns the number of live sessions.
func (ss *Sessions) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.m)
}

// List returns stats for every live session, oldest first.
func (ss *Sessions) List() []Stats {
	ss.mu.RLock()
	stats := make([]Stats, 0, len(ss.m))
	for _, s := range ss.m {
		stats = append(stats, s.Stats())
	}
	ss.mu.RUnlock()

	slices.SortFunc(stats, func(a, b Stats) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return stats
}

// CloseAll terminates every live session.
func (ss *Sessions) CloseAll() {
	ss.mu.RLock()
	sessions := make([]*Session, 0, len(ss.m))
	for _, s := range ss.m {
		sessions = append(sessions, s)
	}
	ss.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
