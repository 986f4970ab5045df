package launch

import (
	"sync"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

// waiter is released by the first observed version of the named resource
// for which complete returns true.
type waiter[T client.Object] struct {
	name     string
	complete func(T) bool
	result   chan T
}

// registry holds the pending waiters of one resource kind. One feed
// services all waiters, so concurrent launches share a single watch.
type registry[T client.Object] struct {
	mu      sync.Mutex
	next    uint64
	waiters map[uint64]*waiter[T]
}

func newRegistry[T client.Object]() *registry[T] {
	return &registry[T]{waiters: make(map[uint64]*waiter[T])}
}

// register adds a waiter and returns its id and the channel that receives
// the completing version exactly once.
func (r *registry[T]) register(name string, complete func(T) bool) (uint64, <-chan T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	w := &waiter[T]{name: name, complete: complete, result: make(chan T, 1)}
	r.waiters[r.next] = w
	return r.next, w.result
}

// deregister removes a waiter that is no longer interested, e.g. after a
// timeout. Removing a released waiter is a no-op.
func (r *registry[T]) deregister(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, id)
}

// observe evaluates obj against every waiter and releases the satisfied
// ones. It returns how many waiters were released.
func (r *registry[T]) observe(obj T) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for id, w := range r.waiters {
		if w.name != obj.GetName() || !w.complete(obj) {
			continue
		}
		w.result <- obj.DeepCopyObject().(T)
		delete(r.waiters, id)
		released++
	}
	return released
}

// pending returns the number of registered waiters.
func (r *registry[T]) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
