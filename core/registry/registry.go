// Package registry provides the flat id-keyed registries the server owns:
// clients, UAVs, clocks and connections. Every registry publishes change
// events on a typed bus so interested components can react without the
// registries knowing about them.
package registry

import (
	"sort"
	"sync"

	"github.com/flocklink/fleetd/core/model"
	"github.com/flocklink/fleetd/internal/eventbus"
)

// EventKind classifies a registry change.
type EventKind int

const (
	EntryAdded EventKind = iota
	EntryUpdated
	EntryRemoved
)

// Event is published whenever a registry entry changes.
type Event[T any] struct {
	Kind  EventKind
	ID    string
	Entry T
}

// Registry is a thread-safe id-keyed collection with change notification.
type Registry[T any] struct {
	kind    string
	mu      sync.RWMutex
	entries map[string]T
	changed *eventbus.TypedBus[Event[T]]
}

// NewRegistry creates a registry whose NotFound errors name the given entity
// kind.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]T),
		changed: eventbus.NewTyped[Event[T]](),
	}
}

// Add inserts or replaces the entry under the given id.
func (r *Registry[T]) Add(id string, entry T) {
	r.mu.Lock()
	_, existed := r.entries[id]
	r.entries[id] = entry
	r.mu.Unlock()

	kind := EntryAdded
	if existed {
		kind = EntryUpdated
	}
	r.changed.Publish(Event[T]{Kind: kind, ID: id, Entry: entry})
}

// Remove deletes the entry under the given id, reporting whether it existed.
func (r *Registry[T]) Remove(id string) (T, bool) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if ok {
		r.changed.Publish(Event[T]{Kind: EntryRemoved, ID: id, Entry: entry})
	}
	return entry, ok
}

// FindByID returns the entry under the given id or a NotFound error naming
// the registry's entity kind.
func (r *Registry[T]) FindByID(id string) (T, error) {
	r.mu.RLock()
	entry, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, model.NewNotFoundError(r.kind, id)
	}
	return entry, nil
}

// Contains reports whether an entry exists under the given id.
func (r *Registry[T]) Contains(id string) bool {
	r.mu.RLock()
	_, ok := r.entries[id]
	r.mu.RUnlock()
	return ok
}

// IDs returns the sorted ids of all entries.
func (r *Registry[T]) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of entries.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Changed exposes the registry's change event bus.
func (r *Registry[T]) Changed() *eventbus.TypedBus[Event[T]] {
	return r.changed
}

// Close shuts down the change event bus.
func (r *Registry[T]) Close() {
	r.changed.Close()
}
