// Package mock provides processors to test dataflow pipelines.
package mock

import (
	"sync"

	"github.com/pipelined/dataflow"
)

// Generator is a source processor: it has no inputs and emits messages
// with sequential int payloads starting from 1. After Limit messages it
// emits nothing. Zero Limit means no limit.
type Generator struct {
	Limit int

	mu   sync.Mutex
	next int
}

// Process implements dataflow.Processor.
func (g *Generator) Process(map[string]*dataflow.Message) (*dataflow.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Limit > 0 && g.next >= g.Limit {
		return nil, nil
	}
	g.next++
	return dataflow.NewMessage(g.next), nil
}

// Emitted returns the number of emitted messages.
func (g *Generator) Emitted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

// Forwarder passes the message of its configured input through and counts
// invocations.
type Forwarder struct {
	Input string

	mu        sync.Mutex
	processed int
}

// Process implements dataflow.Processor.
func (f *Forwarder) Process(inputs map[string]*dataflow.Message) (*dataflow.Message, error) {
	m := inputs[f.Input]
	if m == nil {
		return nil, nil
	}
	f.mu.Lock()
	f.processed++
	f.mu.Unlock()
	return m, nil
}

// Processed returns the number of forwarded messages.
func (f *Forwarder) Processed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed
}

// Toggler forwards messages and supports toggling: while disabled its
// Bypass path forwards too, but counts separately.
type Toggler struct {
	Input string

	mu        sync.Mutex
	processed int
	bypassed  int
}

// Process implements dataflow.Processor.
func (t *Toggler) Process(inputs map[string]*dataflow.Message) (*dataflow.Message, error) {
	m := inputs[t.Input]
	if m == nil {
		return nil, nil
	}
	t.mu.Lock()
	t.processed++
	t.mu.Unlock()
	return m, nil
}

// Bypass implements dataflow.Toggleable.
func (t *Toggler) Bypass(inputs map[string]*dataflow.Message) (*dataflow.Message, error) {
	m := inputs[t.Input]
	if m == nil {
		return nil, nil
	}
	t.mu.Lock()
	t.bypassed++
	t.mu.Unlock()
	return m, nil
}

// Processed returns the number of messages handled while enabled.
func (t *Toggler) Processed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.processed
}

// Bypassed returns the number of messages handled while disabled.
func (t *Toggler) Bypassed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bypassed
}

// Failer fails processing with the configured error.
type Failer struct {
	Err error
}

// Process implements dataflow.Processor.
func (f *Failer) Process(map[string]*dataflow.Message) (*dataflow.Message, error) {
	return nil, f.Err
}

// Capture is a sink processor: it stores every message received on its
// configured input. The message is returned so that the node records its
// hop into the route trail; a capturing node registers no output buffers.
type Capture struct {
	Input string

	mu       sync.Mutex
	messages []*dataflow.Message
}

// Process implements dataflow.Processor.
func (c *Capture) Process(inputs map[string]*dataflow.Message) (*dataflow.Message, error) {
	m := inputs[c.Input]
	if m == nil {
		return nil, nil
	}
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
	return m, nil
}

// Received returns a copy of captured messages in arrival order.
func (c *Capture) Received() []*dataflow.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	messages := make([]*dataflow.Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}
