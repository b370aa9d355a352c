// Package registry provides the process-wide session registry.
package registry

import (
	"sync"
	"time"

	"github.com/gema-bot/gema/internal/app/session"
)

// Registry maps guild identity to its voice session with thread-safe
// access. It is the only structure shared across sessions; creation is
// atomic so concurrent callers for the same guild observe a single
// winner.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
	}
}

// GetOrCreate returns the session for guildID, creating it with
// factory if absent. The second return value is true when a new
// session was created.
func (r *Registry) GetOrCreate(guildID string, factory func() *session.Session) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[guildID]; ok {
		return s, false
	}
	s := factory()
	r.sessions[guildID] = s
	return s, true
}

// Get returns the session for guildID if one exists.
func (r *Registry) Get(guildID string) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[guildID]
	return s, ok
}

// Remove deletes the session for guildID. No-op if absent.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, guildID)
}

// All returns all registered sessions.
func (r *Registry) All() []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepInactive removes sessions that have been idle beyond timeout
// with an empty queue and no current track, and returns the removed
// sessions so the caller can release their transport resources. A
// session mid-transition reports itself active and is never swept.
func (r *Registry) SweepInactive(now time.Time, timeout time.Duration) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []*session.Session
	for guildID, s := range r.sessions {
		if s.IsInactive(now, timeout) {
			delete(r.sessions, guildID)
			removed = append(removed, s)
		}
	}
	return removed
}
