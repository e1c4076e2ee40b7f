// Package presence tracks which users currently hold a live connection.
// It is the single source of truth the delivery pipeline, notification
// fan-out and call signaling consult before pushing anything.
package presence

import (
	"sync"
	"time"
)

// Registry is a concurrency-safe bidirectional map of user id to
// connection handle, with a last-activity stamp per user. A user has at
// most one mapped connection; a newer connect supersedes the older one.
type Registry struct {
	mu         sync.RWMutex
	byUser     map[string]string // userID -> connection handle
	byHandle   map[string]string // connection handle -> userID
	lastActive map[string]time.Time

	now func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		byUser:     make(map[string]string),
		byHandle:   make(map[string]string),
		lastActive: make(map[string]time.Time),
		now:        time.Now,
	}
}

// Connect records the user's connection and stamps last-active. If the
// user already had a mapped handle it is replaced, and the superseded
// handle is returned so the caller can apply its notification policy.
func (r *Registry) Connect(userID, handle string) (superseded string, hadPrevious bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[userID]; ok && old != handle {
		delete(r.byHandle, old)
		superseded = old
		hadPrevious = true
	}

	r.byUser[userID] = handle
	r.byHandle[handle] = userID
	r.lastActive[userID] = r.now()

	return superseded, hadPrevious
}

// Disconnect removes the mapping owned by handle and stamps the user's
// last-active time. It is idempotent: an unmapped handle returns ok=false.
func (r *Registry) Disconnect(handle string) (userID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.byHandle[handle]
	if !ok {
		return "", false
	}

	delete(r.byHandle, handle)
	// The user may have reconnected on a newer handle already; only drop
	// the forward mapping if it still points at this handle.
	if cur, mapped := r.byUser[userID]; mapped && cur == handle {
		delete(r.byUser, userID)
	}
	r.lastActive[userID] = r.now()

	return userID, true
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Registry) HandleOf(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.byUser[userID]
	return handle, ok
}

// LastActive reports when the user last connected or disconnected.
func (r *Registry) LastActive(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.lastActive[userID]
	return t, ok
}

// OnlineUsers returns a snapshot of currently connected user ids.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	return users
}
