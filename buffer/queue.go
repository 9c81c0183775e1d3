package buffer

import (
	"context"
	"sync"
)

// queue is a FIFO queue with optional capacity. Blocked producers and
// consumers wait on broadcast channels that are closed and replaced on
// every relevant state change, so waiters also remain cancellable through
// their context.
type queue struct {
	mu       sync.Mutex
	items    []any
	capacity int // 0 = unbounded
	notEmpty chan struct{}
	notFull  chan struct{}
}

func newQueue(capacity int) *queue {
	return &queue{
		capacity: capacity,
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
	}
}

func (q *queue) put(ctx context.Context, item any) error {
	for {
		q.mu.Lock()
		if !q.full() {
			q.items = append(q.items, item)
			// wake consumers
			close(q.notEmpty)
			q.notEmpty = make(chan struct{})
			q.mu.Unlock()
			return nil
		}
		wait := q.notFull
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *queue) tryPut(item any) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full() {
		return false
	}
	q.items = append(q.items, item)
	close(q.notEmpty)
	q.notEmpty = make(chan struct{})
	return true
}

func (q *queue) get(ctx context.Context) (any, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.pop()
			q.mu.Unlock()
			return item, nil
		}
		wait := q.notEmpty
		q.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *queue) tryGet() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	return q.pop(), true
}

// pop removes the oldest item and wakes producers. Callers must hold q.mu.
func (q *queue) pop() any {
	item := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	close(q.notFull)
	q.notFull = make(chan struct{})
	return item
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) isFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.full()
}

// full reports whether the queue is at capacity. Callers must hold q.mu.
func (q *queue) full() bool {
	return q.capacity > 0 && len(q.items) >= q.capacity
}
