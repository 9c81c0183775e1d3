package dataflow

import (
	"sync"
	"time"

	"github.com/rs/xid"
)

// newUID returns new unique id value.
func newUID() string {
	return xid.New().String()
}

// RouteRecord is per-node diagnostic metadata appended to a message as it
// traverses the pipeline. Records accumulate in hop order, giving a
// verifiable processing trail.
type RouteRecord struct {
	Node      string
	Rate      float64
	Timestamp time.Time
}

// Message is the envelope for pipeline transport. The payload is opaque to
// the engine. A message emitted to multiple output buffers is shared by
// reference, so it must be treated as immutable once emitted.
type Message struct {
	id      string
	payload any

	// route is guarded: consecutive hops run on different goroutines.
	mu    sync.Mutex
	route []RouteRecord
}

// NewMessage wraps a payload into a message.
func NewMessage(payload any) *Message {
	return &Message{
		id:      newUID(),
		payload: payload,
	}
}

// ID returns the message identity.
func (m *Message) ID() string {
	return m.id
}

// Payload returns the wrapped payload.
func (m *Message) Payload() any {
	return m.payload
}

// Route returns a copy of the accumulated route trail.
func (m *Message) Route() []RouteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	route := make([]RouteRecord, len(m.route))
	copy(route, m.route)
	return route
}

// appendRoute records one hop. It is called by the node loop exactly once
// per hop, before the message is emitted downstream.
func (m *Message) appendRoute(node string, rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.route = append(m.route, RouteRecord{
		Node:      node,
		Rate:      rate,
		Timestamp: time.Now(),
	})
}
