// Package event provides a registry of named edge-triggered latches. A
// latch stays set until it is explicitly cleared, so a listener observes
// every firing exactly once: wait, handle, clear, wait again.
//
// The registry is scoped to its owner, typically one pipeline runner. Key
// presses share the latch table under a reserved namespace so that hotkey
// listeners and custom event listeners use the same wait primitive.
package event

import (
	"context"
	"sync"
)

const keyPrefix = "key:"

// Registry holds named latches. Latches are created on first use. All
// methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	latches map[string]*latch
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		latches: make(map[string]*latch),
	}
}

// Set fires the named event. Setting an already set latch has no effect.
func (r *Registry) Set(name string) {
	r.latch(name).set()
}

// Clear resets the named event to unsignaled, re-arming its latch.
func (r *Registry) Clear(name string) {
	r.latch(name).clear()
}

// Wait blocks until the named event fires or ctx is done. It returns
// immediately if the latch is already set.
func (r *Registry) Wait(ctx context.Context, name string) error {
	return r.latch(name).wait(ctx)
}

// IsSet reports whether the named event is currently signaled.
func (r *Registry) IsSet(name string) bool {
	return r.latch(name).isSet()
}

// Press fires the latch bound to a key press.
func (r *Registry) Press(key string) {
	r.Set(keyPrefix + key)
}

// ClearKey resets the latch bound to a key press.
func (r *Registry) ClearKey(key string) {
	r.Clear(keyPrefix + key)
}

// WaitKey blocks until the key is pressed or ctx is done.
func (r *Registry) WaitKey(ctx context.Context, key string) error {
	return r.Wait(ctx, keyPrefix+key)
}

func (r *Registry) latch(name string) *latch {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.latches[name]
	if !ok {
		l = newLatch()
		r.latches[name] = l
	}
	return l
}

// latch is a resettable broadcast: set closes the channel, clear replaces
// it with a fresh one.
type latch struct {
	mu     sync.Mutex
	signal bool
	fired  chan struct{}
}

func newLatch() *latch {
	return &latch{fired: make(chan struct{})}
}

func (l *latch) set() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.signal {
		return
	}
	l.signal = true
	close(l.fired)
}

func (l *latch) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.signal {
		return
	}
	l.signal = false
	l.fired = make(chan struct{})
}

func (l *latch) wait(ctx context.Context) error {
	l.mu.Lock()
	fired := l.fired
	l.mu.Unlock()
	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *latch) isSet() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.signal
}
