package session

import (
	"sort"
	"sync"

	"github.com/calebforbes/ensemble/internal/errors"
)

// Registry owns the in-memory session map. It is the only structure mutated
// from multiple concurrent operation streams (control commands, invocation
// callbacks, the autosave timer), so every mutation goes through a single
// read-modify-write critical section per session.
//
// Identifiers, branches, and worktree paths are never reused for the lifetime
// of the process, even after a session is deleted.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// Tombstones for uniqueness across deletes.
	usedIDs      map[string]struct{}
	usedBranches map[string]struct{}
	usedPaths    map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:     make(map[string]*Session),
		usedIDs:      make(map[string]struct{}),
		usedBranches: make(map[string]struct{}),
		usedPaths:    make(map[string]struct{}),
	}
}

// Register adds a new session. It fails if the id, branch, or worktree path
// has ever been used by this registry.
func (r *Registry) Register(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.usedIDs[s.ID]; taken {
		return errors.New("session id already used: " + s.ID)
	}
	if _, taken := r.usedBranches[s.Branch]; taken {
		return errors.New("branch already used: " + s.Branch)
	}
	if _, taken := r.usedPaths[s.WorktreePath]; taken {
		return errors.New("worktree path already used: " + s.WorktreePath)
	}

	r.usedIDs[s.ID] = struct{}{}
	r.usedBranches[s.Branch] = struct{}{}
	r.usedPaths[s.WorktreePath] = struct{}{}
	r.sessions[s.ID] = s
	return nil
}

// Get returns a deep copy of the session, or a NotFoundError.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError("session", id)
	}
	return s.Clone(), nil
}

// Update applies fn to the session under the registry lock, so concurrent
// message appends and status transitions cannot lose updates. fn receives the
// live session and may mutate it freely; UpdatedAt is refreshed afterwards.
// Returns a deep copy of the updated session.
func (r *Registry) Update(id string, fn func(*Session)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, errors.NewNotFoundError("session", id)
	}
	fn(s)
	s.Touch()
	return s.Clone(), nil
}

// Delete removes the session from the registry. Its id, branch, and path
// remain tombstoned and are never handed out again.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return errors.NewNotFoundError("session", id)
	}
	delete(r.sessions, id)
	return nil
}

// List returns deep copies of all sessions, ordered by creation time
// (oldest first) with id as tiebreaker for determinism.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Restore places sessions loaded from a snapshot into the registry, applying
// the restart reconciliation rule: a persisted active session's invocation
// cannot have survived the restart, so it is rewritten to paused before
// registration. All other fields, including the transcript and the runtime
// session token, are restored verbatim.
//
// A record that violates id/branch/path uniqueness is skipped rather than
// aborting the load. The returned errors describe each skipped record.
func (r *Registry) Restore(sessions []*Session) []error {
	var skipped []error
	for _, s := range sessions {
		if s.Status == StatusActive {
			s.Status = StatusPaused
		}
		if err := r.Register(s); err != nil {
			skipped = append(skipped, err)
		}
	}
	return skipped
}
