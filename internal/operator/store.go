package operator

import (
	"sort"
	"sync"

	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Store caches the last observed version of every resource of one kind,
// keyed by UID. Writes always replace the whole value.
type Store[T client.Object] struct {
	mu    sync.RWMutex
	items map[types.UID]T
}

// NewStore returns an empty store.
func NewStore[T client.Object]() *Store[T] {
	return &Store[T]{items: make(map[types.UID]T)}
}

// Put stores obj under its UID, replacing any previous version.
func (s *Store[T]) Put(obj T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[obj.GetUID()] = obj
}

// Delete removes the entry for uid.
func (s *Store[T]) Delete(uid types.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, uid)
}

// Get returns the entry for uid.
func (s *Store[T]) Get(uid types.UID) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.items[uid]
	return obj, ok
}

// Find returns the first entry, in name order, for which match is true.
func (s *Store[T]) Find(match func(T) bool) (T, bool) {
	for _, obj := range s.List() {
		if match(obj) {
			return obj, true
		}
	}
	var zero T
	return zero, false
}

// List returns a snapshot of all entries sorted by name.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	out := make([]T, 0, len(s.items))
	for _, obj := range s.items {
		out = append(out, obj)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].GetName() < out[j].GetName()
	})
	return out
}

// Len returns the number of cached entries.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
