package presence

import (
	"sort"
	"sync"
)

// Tracker maps users to their live connection ids. A user is online while
// at least one connection is registered.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]map[string]struct{}
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]map[string]struct{})}
}

// AddConnection registers connID for userID and reports whether the user just came online.
func (t *Tracker) AddConnection(userID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		t.conns[userID] = set
	}
	set[connID] = struct{}{}
	return !ok
}

// RemoveConnection drops connID and reports whether it was the user's last one.
func (t *Tracker) RemoveConnection(userID, connID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.conns[userID]
	if !ok {
		return false
	}
	if _, exists := set[connID]; !exists {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(t.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether userID has any live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[userID]
	return ok
}

// Connections returns the number of live connections for userID.
func (t *Tracker) Connections(userID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns[userID])
}

// OnlineCount returns the number of online users.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// OnlineUsers returns the online user ids in sorted order.
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	users := make([]string, 0, len(t.conns))
	for id := range t.conns {
		users = append(users, id)
	}
	t.mu.RUnlock()
	sort.Strings(users)
	return users
}
