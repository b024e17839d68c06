package chat

import (
	"sync"
)

// Registry is the single source of truth for who is online on this node:
// userID -> active client, at most one entry per user. It is the only state
// shared across connections; every operation holds the mutex so register,
// deregister and broadcast snapshots are linearizable with each other.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]*Client
}

func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int64]*Client)}
}

// Register inserts the client, replacing any previous entry for the user.
// The evicted client (nil if none) is returned so the caller can close it.
func (r *Registry) Register(userID int64, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.byUser[userID]
	if prev == c {
		return nil
	}
	r.byUser[userID] = c
	return prev
}

// Deregister removes the entry only if it still belongs to c, so a replaced
// connection's teardown never evicts its successor. Reports whether an entry
// was removed.
func (r *Registry) Deregister(userID int64, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byUser[userID]; ok && cur == c {
		delete(r.byUser, userID)
		return true
	}
	return false
}

func (r *Registry) Lookup(userID int64) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

// Snapshot returns the online user ids at one consistent instant.
func (r *Registry) Snapshot() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.byUser))
	for id := range r.byUser {
		out = append(out, id)
	}
	return out
}

// SnapshotClients returns all registered clients except the excluded user,
// taken under the lock so a broadcast sees one consistent membership.
func (r *Registry) SnapshotClients(exclude int64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.byUser))
	for id, c := range r.byUser {
		if id == exclude {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
