// Package presence maps identified users to their live connection handle.
//
// At most one handle is kept per user and the latest registration wins.
// Unregister is keyed by handle and only removes the entry while that handle is
// still current, so a late disconnect from an old connection never evicts the
// newer one.
package presence

import (
	"context"
	"sync"
)

// Registry is the user -> handle index shared by connection callbacks
type Registry interface {
	Register(ctx context.Context, userID, handleID string) error
	Unregister(ctx context.Context, handleID string) error
	Lookup(ctx context.Context, userID string) (string, bool)
}

// MemoryRegistry is a process-local Registry guarded by a single mutex
type MemoryRegistry struct {
	mu       sync.Mutex
	byUser   map[string]string
	byHandle map[string]string
}

// NewMemoryRegistry creates an empty in-memory registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byUser:   make(map[string]string),
		byHandle: make(map[string]string),
	}
}

func (r *MemoryRegistry) Register(_ context.Context, userID, handleID string) error {
	if userID == "" || handleID == "" {
		return ErrEmptyID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[userID]; ok && old != handleID {
		delete(r.byHandle, old)
	}
	// the handle re-identified as someone else
	if prev, ok := r.byHandle[handleID]; ok && prev != userID && r.byUser[prev] == handleID {
		delete(r.byUser, prev)
	}

	r.byUser[userID] = handleID
	r.byHandle[handleID] = userID
	return nil
}

func (r *MemoryRegistry) Unregister(_ context.Context, handleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byHandle[handleID]
	if !ok {
		return nil
	}
	delete(r.byHandle, handleID)
	if r.byUser[userID] == handleID {
		delete(r.byUser, userID)
	}
	return nil
}

func (r *MemoryRegistry) Lookup(_ context.Context, userID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byUser[userID]
	return h, ok
}

// Len returns the number of identified users
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}
