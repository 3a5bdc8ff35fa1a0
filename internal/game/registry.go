package game

import (
	"sort"
	"sync"
	"time"
)

// Registry holds at most one active session per community.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// TryStart stores the session built by factory unless the community already
// has one, in which case the existing session is returned with ErrAlreadyActive.
func (r *Registry) TryStart(communityID int64, factory func() *Session) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[communityID]; ok {
		return s, ErrAlreadyActive
	}
	s := factory()
	r.sessions[communityID] = s
	return s, nil
}

// End clears the community slot and returns the removed session, if any.
func (r *Registry) End(communityID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[communityID]
	delete(r.sessions, communityID)
	return s
}

// EndSession clears the slot only while it still holds s.
func (r *Registry) EndSession(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.CommunityID]; ok && cur == s {
		delete(r.sessions, s.CommunityID)
		return true
	}
	return false
}

func (r *Registry) Current(communityID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[communityID]
	return s, ok
}

// All returns active sessions ordered by start time.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// EndIdle removes sessions whose last activity is older than maxIdle.
// Sessions with a round in flight are never idle.
func (r *Registry) EndIdle(now time.Time, maxIdle time.Duration) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ended []*Session
	for id, s := range r.sessions {
		if !s.InFlight() && now.Sub(s.LastActivity()) > maxIdle {
			delete(r.sessions, id)
			ended = append(ended, s)
		}
	}
	return ended
}
