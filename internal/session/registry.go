// internal/session/registry.go
package session

import (
	"sync"
	"sync/atomic"

	"github.com/user/haven/internal/types"
)

// managed wraps a Session with its ownership state. The in-progress
// marker enforces single-writer-per-session between turns; the RWMutex
// covers the window inside a turn, so read paths (history, export) can
// snapshot a session that a turn is mutating.
type managed struct {
	session    *types.Session
	mu         sync.RWMutex
	inProgress atomic.Bool
}

// Registry holds the active sessions. It is an explicit object injected
// into the state machine, so multiple independent instances can coexist
// and tests stay isolated.
type Registry struct {
	mu     sync.RWMutex
	byID   map[types.SessionID]*managed
	byUser map[types.UserID]types.SessionID
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[types.SessionID]*managed),
		byUser: make(map[types.UserID]types.SessionID),
	}
}

// Insert adds a session. Returns ErrUserSessionExists if the user already
// has an active session.
func (r *Registry) Insert(session *types.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUser[session.UserID]; ok {
		return types.ErrUserSessionExists
	}
	r.byID[session.ID] = &managed{session: session}
	r.byUser[session.UserID] = session.ID
	return nil
}

// Get returns the managed session, or ErrSessionNotFound.
func (r *Registry) Get(id types.SessionID) (*managed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, types.ErrSessionNotFound
	}
	return m, nil
}

// Remove evicts a session from the registry.
func (r *Registry) Remove(id types.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	if r.byUser[m.session.UserID] == id {
		delete(r.byUser, m.session.UserID)
	}
}

// ByUser returns snapshots of the user's active sessions. Copies, not
// live pointers: callers may read or encode them while a turn mutates
// the originals.
func (r *Registry) ByUser(userID types.UserID) []*types.Session {
	var out []*types.Session
	for _, m := range r.managedByUser(userID) {
		out = append(out, m.snapshot())
	}
	return out
}

// managedByUser returns the user's managed sessions, for lifecycle
// operations that need to claim the turn marker.
func (r *Registry) managedByUser(userID types.UserID) []*managed {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*managed
	if id, ok := r.byUser[userID]; ok {
		if m, ok := r.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// beginTurn claims the in-progress marker. Returns false if another turn
// for this session is still running.
func (m *managed) beginTurn() bool {
	return m.inProgress.CompareAndSwap(false, true)
}

// endTurn releases the in-progress marker.
func (m *managed) endTurn() {
	m.inProgress.Store(false)
}

// snapshot copies the session under the read lock.
func (m *managed) snapshot() *types.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}
