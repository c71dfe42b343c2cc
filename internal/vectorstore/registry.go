package vectorstore

import "sync"

// Registry maps video ids to their published vector stores. Publication is a
// single atomic handoff: a reader sees either the previous complete store or
// the new one, never a partially populated store. Re-publishing a video id
// replaces the prior store wholesale.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]*Store)}
}

// Publish installs a fully built store for its video id.
func (r *Registry) Publish(s *Store) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.VideoID()] = s
}

// Get returns the published store for videoID, if any.
func (r *Registry) Get(videoID string) (*Store, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[videoID]
	return s, ok
}

// Remove drops the store for videoID.
func (r *Registry) Remove(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, videoID)
}

// Len returns the number of published stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
