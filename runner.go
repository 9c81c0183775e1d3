package dataflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/pipelined/dataflow/buffer"
	"github.com/pipelined/dataflow/event"
)

// Runner owns a pipeline: the shared buffer registry, the event registry
// and the set of nodes registered against them. Topology is defined by
// registering buffers and adding nodes wired to them; Start launches one
// worker loop per node under a single cancellable context.
type Runner struct {
	uid     string
	name    string
	buffers *buffer.Registry
	events  *event.Registry
	log     Logger

	mu      sync.Mutex
	nodes   []*Node
	started bool
	cancel  context.CancelFunc
	merger  *errorMerger
}

// Option provides a way to set functional parameters to a runner.
type Option func(*Runner) error

// WithLogger sets logger to the runner and its nodes. If this option is
// not provided, silent logger is used.
func WithLogger(logger Logger) Option {
	return func(r *Runner) error {
		r.log = logger
		return nil
	}
}

// WithName sets name to the runner.
func WithName(n string) Option {
	return func(r *Runner) error {
		r.name = n
		return nil
	}
}

// NewRunner creates a new runner with empty buffer and event registries
// and applies provided options.
func NewRunner(options ...Option) (*Runner, error) {
	r := &Runner{
		uid:     newUID(),
		buffers: buffer.NewRegistry(),
		events:  event.NewRegistry(),
		log:     defaultLogger,
	}
	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Buffers returns the shared buffer registry.
func (r *Runner) Buffers() *buffer.Registry {
	return r.buffers
}

// Events returns the event registry.
func (r *Runner) Events() *event.Registry {
	return r.events
}

// RegisterBuffer creates a named buffer in the shared registry. Capacity 0
// means unbounded.
func (r *Runner) RegisterBuffer(name string, capacity int) error {
	return r.buffers.Register(name, capacity)
}

// Add binds nodes to the runner. Adding to a started runner fails.
func (r *Runner) Add(nodes ...*Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrRunnerStarted
	}
	for _, n := range nodes {
		if err := n.Bind(r); err != nil {
			return err
		}
		r.nodes = append(r.nodes, n)
	}
	return nil
}

// Start launches the loop of every added node. Node failures are logged
// and collected without stopping healthy nodes.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrRunnerStarted
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.merger = &errorMerger{log: r.log}
	for _, n := range r.nodes {
		r.merger.add(n.Run(ctx))
		r.log.Debug("node started", n.Name())
	}
	r.log.Info("runner started", r.String(), len(r.nodes))
	return nil
}

// Stop cancels all node loops, waits for them to exit and returns errors
// collected during the run.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrRunnerNotStarted
	}
	cancel, merger := r.cancel, r.merger
	r.mu.Unlock()
	cancel()
	err := merger.wait()
	r.log.Info("runner stopped", r.String())
	return err
}

// Wait blocks until all node loops exit on their own and returns errors
// collected during the run.
func (r *Runner) Wait() error {
	r.mu.Lock()
	merger := r.merger
	r.mu.Unlock()
	if merger == nil {
		return ErrRunnerNotStarted
	}
	return merger.wait()
}

// Snapshot returns current sizes of all registered buffers.
func (r *Runner) Snapshot() map[string]int {
	return r.buffers.Snapshot()
}

// String returns the runner name if set, uid otherwise.
func (r *Runner) String() string {
	if r.name == "" {
		return r.uid
	}
	return fmt.Sprintf("%v %v", r.name, r.uid)
}
