// Package buffer provides a registry of named bounded FIFO queues. It is
// the only shared mutable state between nodes of a pipeline: every node
// reads its inputs from and writes its outputs to queues looked up by name.
package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateBuffer is returned on registration of an already taken name.
var ErrDuplicateBuffer = errors.New("buffer already registered")

// ErrUnknownBuffer is returned by any operation on a name that was never
// registered.
var ErrUnknownBuffer = errors.New("buffer not registered")

// Registry holds named queues. All operations are safe for concurrent use.
// Each queue carries its own lock, so operations on different names never
// contend.
type Registry struct {
	mu     sync.RWMutex
	queues map[string]*queue
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		queues: make(map[string]*queue),
	}
}

// Register creates a new queue. Capacity 0 means unbounded.
func (r *Registry) Register(name string, capacity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.queues[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateBuffer, name)
	}
	r.queues[name] = newQueue(capacity)
	return nil
}

// Put enqueues an item. It blocks while the queue is full until space is
// available or ctx is done.
func (r *Registry) Put(ctx context.Context, name string, item any) error {
	q, err := r.queue(name)
	if err != nil {
		return err
	}
	return q.put(ctx, item)
}

// TryPut enqueues an item without blocking. It returns false and leaves the
// queue unchanged if the queue is full.
func (r *Registry) TryPut(name string, item any) (bool, error) {
	q, err := r.queue(name)
	if err != nil {
		return false, err
	}
	return q.tryPut(item), nil
}

// Get dequeues the oldest item. It blocks while the queue is empty until an
// item arrives or ctx is done.
func (r *Registry) Get(ctx context.Context, name string) (any, error) {
	q, err := r.queue(name)
	if err != nil {
		return nil, err
	}
	return q.get(ctx)
}

// TryGet dequeues the oldest item without blocking. It returns false if the
// queue is empty.
func (r *Registry) TryGet(name string) (any, bool, error) {
	q, err := r.queue(name)
	if err != nil {
		return nil, false, err
	}
	item, ok := q.tryGet()
	return item, ok, nil
}

// IsEmpty reports whether the queue has no items. The answer is
// point-in-time and may be stale immediately under concurrency.
func (r *Registry) IsEmpty(name string) (bool, error) {
	q, err := r.queue(name)
	if err != nil {
		return false, err
	}
	return q.len() == 0, nil
}

// IsFull reports whether the queue is at capacity. Unbounded queues are
// never full. Same staleness caveat as IsEmpty.
func (r *Registry) IsFull(name string) (bool, error) {
	q, err := r.queue(name)
	if err != nil {
		return false, err
	}
	return q.isFull(), nil
}

// View returns a registry restricted to the provided names. The view shares
// the underlying queues with its parent: items put through one are visible
// to the other. It is used to scope a node's visibility to the buffers it
// is wired to.
func (r *Registry) View(names ...string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	queues := make(map[string]*queue, len(names))
	for _, name := range names {
		q, ok := r.queues[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownBuffer, name)
		}
		queues[name] = q
	}
	return &Registry{queues: queues}, nil
}

// Snapshot returns current queue sizes mapped by name. Diagnostic only.
func (r *Registry) Snapshot() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sizes := make(map[string]int, len(r.queues))
	for name, q := range r.queues {
		sizes[name] = q.len()
	}
	return sizes
}

func (r *Registry) queue(name string) (*queue, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBuffer, name)
	}
	return q, nil
}
