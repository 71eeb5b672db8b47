// Package capability is a typed lookup table through which the engine hands
// its services to out-of-process collaborators.
package capability

import (
	"fmt"
	"sync"
)

// Key identifies a capability by a stable string id and carries its type.
type Key[T any] struct {
	id string
}

func NewKey[T any](id string) Key[T] {
	return Key[T]{id: id}
}

func (k Key[T]) ID() string { return k.id }

type Registry struct {
	mu      sync.RWMutex
	entries map[string]any
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]any)}
}

// Register binds v to key, replacing any earlier binding.
func Register[T any](r *Registry, key Key[T], v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key.id] = v
}

// Lookup returns the binding for key. ok is false when nothing is registered
// or the stored value has a different type.
func Lookup[T any](r *Registry, key Key[T]) (v T, ok bool) {
	r.mu.RLock()
	raw, found := r.entries[key.id]
	r.mu.RUnlock()
	if !found {
		return v, false
	}
	v, ok = raw.(T)
	return v, ok
}

// MustLookup panics when key is missing. Only for wiring at startup.
func MustLookup[T any](r *Registry, key Key[T]) T {
	v, ok := Lookup(r, key)
	if !ok {
		panic(fmt.Sprintf("capability %q not registered", key.id))
	}
	return v
}

func Unregister[T any](r *Registry, key Key[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key.id)
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}
