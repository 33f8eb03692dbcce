package session

import "sync"

// Registry is the authoritative in-memory index of session handles.
// It holds at most one handle per user at any time; it is a process-local
// cache over the durable store, never shared across processes.
type Registry struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry allocates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// Get returns the handle for userID when present.
func (r *Registry) Get(userID string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[userID]
	return h, ok
}

// GetOrCreate returns the existing handle or installs a fresh one.
// A second caller always observes the first caller's handle, never a
// duplicate for the same user.
func (r *Registry) GetOrCreate(userID string) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[userID]; ok {
		return h
	}
	h := newHandle(userID)
	r.handles[userID] = h
	return h
}

// Remove deletes the handle only while it is still the registered one,
// so removing a stale handle never evicts its replacement.
func (r *Registry) Remove(userID string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.handles[userID]; ok && current == h {
		delete(r.handles, userID)
	}
}

// Range visits every handle until fn returns false.
func (r *Registry) Range(fn func(*Handle) bool) {
	r.mu.Lock()
	snapshot := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		snapshot = append(snapshot, h)
	}
	r.mu.Unlock()

	for _, h := range snapshot {
		if !fn(h) {
			return
		}
	}
}

// Count returns the number of registered handles.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
