package dataflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pipelined/dataflow/buffer"
	"github.com/pipelined/dataflow/internal/rate"
	"github.com/pipelined/dataflow/metric"
)

// DefaultMaxRate limits node processing unless overridden with WithMaxRate.
const DefaultMaxRate = 30

// DefaultPollInterval is the delay between input readiness checks.
const DefaultPollInterval = time.Millisecond

// Processor implements the function of a node. Process is invoked while
// the node is enabled and all essential inputs are ready. Input messages
// are mapped by the logical input names of registered input buffers;
// inputs of unready inessential buffers are nil. A nil output means the
// iteration emits nothing.
type Processor interface {
	Process(inputs map[string]*Message) (*Message, error)
}

// Toggleable is a capability interface for processors that support
// runtime enable/disable toggling. Bypass defines the node behavior while
// disabled; its contract is the same as Process. A toggle key can only be
// configured for processors implementing this interface.
type Toggleable interface {
	Processor
	Bypass(inputs map[string]*Message) (*Message, error)
}

// InputBinding wires a named buffer to a logical input of a node. An
// essential binding makes the node wait until the input is ready before
// processing; an inessential one resolves to nil instead.
type InputBinding struct {
	Buffer    string
	Input     string
	Essential bool
}

// OutputBinding wires node output to a named buffer.
type OutputBinding struct {
	Buffer string
}

// listener binds a handler function to a named event or a key press.
type listener struct {
	name string
	key  bool
	fn   func()
}

// Node is an independent worker of a pipeline: it gathers messages from
// its input buffers, transforms them with its processor and emits the
// result to its output buffers. Bindings and handlers are configured
// before the node runs; a running node is driven only by its buffers, its
// rate gate and its enable flag.
type Node struct {
	name         string
	proc         Processor
	toggleable   Toggleable
	toggleKey    string
	maxRate      int
	pollInterval time.Duration
	window       int

	inputs    []InputBinding
	outputs   []OutputBinding
	listeners []listener
	pending   map[string]*Message

	enabled atomic.Bool
	owner   *Runner
	meter   *metric.Meter
	log     Logger
}

// NodeOption provides a way to set functional parameters to a node.
type NodeOption func(*Node) error

// WithToggleKey sets a hotkey that toggles the node between enabled and
// disabled. The node's processor must implement Toggleable.
func WithToggleKey(key string) NodeOption {
	return func(n *Node) error {
		n.toggleKey = key
		return nil
	}
}

// WithMaxRate caps node processing at perSecond operations per second.
// Zero removes the cap.
func WithMaxRate(perSecond int) NodeOption {
	return func(n *Node) error {
		if perSecond < 0 {
			return fmt.Errorf("negative max rate: %d", perSecond)
		}
		n.maxRate = perSecond
		return nil
	}
}

// WithPollInterval sets the delay between input readiness checks.
func WithPollInterval(interval time.Duration) NodeOption {
	return func(n *Node) error {
		if interval <= 0 {
			return fmt.Errorf("non-positive poll interval: %v", interval)
		}
		n.pollInterval = interval
		return nil
	}
}

// WithWindow sets the size of the rolling window used to measure the node
// processing rate.
func WithWindow(size int) NodeOption {
	return func(n *Node) error {
		if size <= 0 {
			return fmt.Errorf("non-positive window: %d", size)
		}
		n.window = size
		return nil
	}
}

// NewNode creates a node executing the provided processor and applies
// provided options. The node is created enabled.
func NewNode(name string, p Processor, options ...NodeOption) (*Node, error) {
	n := &Node{
		name:         name,
		proc:         p,
		maxRate:      DefaultMaxRate,
		pollInterval: DefaultPollInterval,
		window:       metric.DefaultWindow,
		pending:      make(map[string]*Message),
		log:          defaultLogger,
	}
	n.enabled.Store(true)
	for _, option := range options {
		if err := option(n); err != nil {
			return nil, err
		}
	}
	if t, ok := p.(Toggleable); ok {
		n.toggleable = t
	}
	if n.toggleKey != "" && n.toggleable == nil {
		return nil, fmt.Errorf("node %q: %w", name, ErrNotToggleable)
	}
	n.meter = metric.New(name, n.window)
	return n, nil
}

// Name returns the node name used in diagnostics and route records.
func (n *Node) Name() string {
	return n.name
}

// Enabled reports whether the node currently processes or bypasses.
func (n *Node) Enabled() bool {
	return n.enabled.Load()
}

// RegisterInput wires a named buffer to a logical input. It can be
// invoked multiple times to register multiple inputs and must be done
// before the node runs.
func (n *Node) RegisterInput(bufferName, inputName string, essential bool) {
	n.inputs = append(n.inputs, InputBinding{
		Buffer:    bufferName,
		Input:     inputName,
		Essential: essential,
	})
}

// RegisterOutput wires node output to one or multiple named buffers.
// Output is emitted in registration order. Must be done before the node
// runs.
func (n *Node) RegisterOutput(bufferNames ...string) {
	for _, name := range bufferNames {
		n.outputs = append(n.outputs, OutputBinding{Buffer: name})
	}
}

// Bind associates the node with its runner. It is a one-time operation:
// re-binding fails with ErrAlreadyBound. Binding a node with a toggle key
// registers the built-in toggle handler.
func (n *Node) Bind(r *Runner) error {
	if n.owner != nil {
		return fmt.Errorf("node %q: %w", n.name, ErrAlreadyBound)
	}
	n.owner = r
	n.log = r.log
	if n.toggleKey != "" {
		return n.RegisterKeyHandler(n.toggleKey, n.toggle)
	}
	return nil
}

// RegisterEventHandler binds a handler to a named event. The handler runs
// on a dedicated listener loop once per event firing: the loop waits for
// the event, invokes the handler synchronously and clears the event
// before waiting again. The node must be bound to a runner first.
func (n *Node) RegisterEventHandler(eventName string, fn func()) error {
	if n.owner == nil {
		return fmt.Errorf("node %q: %w", n.name, ErrNotBound)
	}
	n.listeners = append(n.listeners, listener{name: eventName, fn: fn})
	return nil
}

// RegisterKeyHandler binds a handler to a key press. Semantics are the
// same as RegisterEventHandler.
func (n *Node) RegisterKeyHandler(key string, fn func()) error {
	if n.owner == nil {
		return fmt.Errorf("node %q: %w", n.name, ErrNotBound)
	}
	n.listeners = append(n.listeners, listener{name: key, key: true, fn: fn})
	return nil
}

// toggle is the built-in handler of the toggle key.
func (n *Node) toggle() {
	enabled := !n.enabled.Load()
	n.enabled.Store(enabled)
	n.log.Debug("node toggled", n.name, enabled)
}

// Run starts the node scheduling loop and its event listener loops. All
// loops stop when ctx is done. The returned channel carries the error
// that terminated the loop, if any, and is closed on exit.
func (n *Node) Run(ctx context.Context) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if n.owner == nil {
			errc <- fmt.Errorf("node %q: %w", n.name, ErrNotBound)
			return
		}
		// scope visibility to the wired buffers
		buffers, err := n.owner.Buffers().View(n.bufferNames()...)
		if err != nil {
			errc <- fmt.Errorf("node %q: %w", n.name, err)
			return
		}
		var wg sync.WaitGroup
		defer wg.Wait()
		n.listen(ctx, &wg)
		n.loop(ctx, buffers, errc)
	}()
	return errc
}

// listen starts a dedicated loop per registered handler.
func (n *Node) listen(ctx context.Context, wg *sync.WaitGroup) {
	events := n.owner.Events()
	for _, l := range n.listeners {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var err error
				if l.key {
					err = events.WaitKey(ctx, l.name)
				} else {
					err = events.Wait(ctx, l.name)
				}
				if err != nil {
					return
				}
				l.fn()
				if l.key {
					events.ClearKey(l.name)
				} else {
					events.Clear(l.name)
				}
			}
		}()
	}
}

// loop gathers inputs, invokes the transform and emits output until ctx
// is done or the transform fails.
func (n *Node) loop(ctx context.Context, buffers *buffer.Registry, errc chan error) {
	gate := rate.NewGate(n.maxRate)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		inputs, ready, err := n.gather(buffers)
		if err != nil {
			errc <- fmt.Errorf("node %q: %w", n.name, err)
			return
		}
		if !ready {
			select {
			case <-time.After(n.pollInterval):
				continue
			case <-ctx.Done():
				return
			}
		}

		var out *Message
		if !n.enabled.Load() {
			if n.toggleable == nil {
				errc <- fmt.Errorf("node %q: %w", n.name, ErrNotToggleable)
				return
			}
			// no rate cap, no metrics, no route record while disabled
			out, err = n.toggleable.Bypass(inputs)
			if err != nil {
				errc <- fmt.Errorf("node %q: bypass: %w", n.name, err)
				return
			}
		} else {
			stop := n.meter.Measure()
			if err = gate.Wait(ctx); err != nil {
				return
			}
			out, err = n.proc.Process(inputs)
			stop()
			if err != nil {
				errc <- fmt.Errorf("node %q: process: %w", n.name, err)
				return
			}
			if out != nil {
				out.appendRoute(n.name, n.meter.Rate())
			}
		}
		if out == nil {
			continue
		}

		// blocking put propagates backpressure from full downstream buffers
		for _, o := range n.outputs {
			if err := buffers.Put(ctx, o.Buffer, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				errc <- fmt.Errorf("node %q: %w", n.name, err)
				return
			}
		}
	}
}

// gather collects one message per input binding. It reports not-ready
// without consuming anything new if any essential input has no message
// available. Messages fetched before an essential miss are parked and
// reused on the next iteration, so a readiness race with another consumer
// discards nothing.
func (n *Node) gather(buffers *buffer.Registry) (map[string]*Message, bool, error) {
	for _, in := range n.inputs {
		if !in.Essential {
			continue
		}
		if _, ok := n.pending[in.Input]; ok {
			continue
		}
		empty, err := buffers.IsEmpty(in.Buffer)
		if err != nil {
			return nil, false, err
		}
		if empty {
			return nil, false, nil
		}
	}

	ready := true
	for _, in := range n.inputs {
		if _, ok := n.pending[in.Input]; ok {
			continue
		}
		item, ok, err := buffers.TryGet(in.Buffer)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			if in.Essential {
				ready = false
			}
			// inessential misses resolve to nil without waiting
			continue
		}
		m, ok := item.(*Message)
		if !ok {
			return nil, false, fmt.Errorf("unexpected item type %T in buffer %q", item, in.Buffer)
		}
		n.pending[in.Input] = m
	}
	if !ready {
		return nil, false, nil
	}

	inputs := make(map[string]*Message, len(n.inputs))
	for _, in := range n.inputs {
		inputs[in.Input] = nil
	}
	for name, m := range n.pending {
		inputs[name] = m
		delete(n.pending, name)
	}
	return inputs, true, nil
}

// bufferNames returns names of all wired buffers without duplicates.
func (n *Node) bufferNames() []string {
	seen := make(map[string]struct{}, len(n.inputs)+len(n.outputs))
	names := make([]string, 0, len(n.inputs)+len(n.outputs))
	for _, in := range n.inputs {
		if _, ok := seen[in.Buffer]; !ok {
			seen[in.Buffer] = struct{}{}
			names = append(names, in.Buffer)
		}
	}
	for _, out := range n.outputs {
		if _, ok := seen[out.Buffer]; !ok {
			seen[out.Buffer] = struct{}{}
			names = append(names, out.Buffer)
		}
	}
	return names
}
