package dataflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/dataflow"
	"github.com/pipelined/dataflow/buffer"
	"github.com/pipelined/dataflow/mock"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

// recorder captures the input maps it was invoked with.
type recorder struct {
	mu    sync.Mutex
	calls []map[string]*dataflow.Message
}

func (r *recorder) Process(inputs map[string]*dataflow.Message) (*dataflow.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make(map[string]*dataflow.Message, len(inputs))
	for k, v := range inputs {
		copied[k] = v
	}
	r.calls = append(r.calls, copied)
	return nil, nil
}

func (r *recorder) Calls() []map[string]*dataflow.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]map[string]*dataflow.Message, len(r.calls))
	copy(calls, r.calls)
	return calls
}

func TestNewNode(t *testing.T) {
	// toggle key requires the Toggleable capability
	_, err := dataflow.NewNode("plain", &mock.Forwarder{Input: "in"}, dataflow.WithToggleKey("t"))
	assert.ErrorIs(t, err, dataflow.ErrNotToggleable)

	n, err := dataflow.NewNode("toggleable", &mock.Toggler{Input: "in"}, dataflow.WithToggleKey("t"))
	assert.Nil(t, err)
	assert.True(t, n.Enabled())

	// invalid options
	_, err = dataflow.NewNode("negative-rate", &mock.Generator{}, dataflow.WithMaxRate(-1))
	assert.NotNil(t, err)
	_, err = dataflow.NewNode("zero-poll", &mock.Generator{}, dataflow.WithPollInterval(0))
	assert.NotNil(t, err)
	_, err = dataflow.NewNode("zero-window", &mock.Generator{}, dataflow.WithWindow(0))
	assert.NotNil(t, err)
}

func TestBind(t *testing.T) {
	n, err := dataflow.NewNode("bind", &mock.Generator{})
	require.NoError(t, err)

	// owner-dependent registration before binding
	err = n.RegisterEventHandler("tick", func() {})
	assert.ErrorIs(t, err, dataflow.ErrNotBound)
	err = n.RegisterKeyHandler("k", func() {})
	assert.ErrorIs(t, err, dataflow.ErrNotBound)

	r1, err := dataflow.NewRunner()
	require.NoError(t, err)
	require.NoError(t, n.Bind(r1))
	assert.NoError(t, n.RegisterEventHandler("tick", func() {}))

	// re-binding an already-bound node
	r2, err := dataflow.NewRunner()
	require.NoError(t, err)
	assert.ErrorIs(t, n.Bind(r2), dataflow.ErrAlreadyBound)
}

func TestRunUnbound(t *testing.T) {
	n, err := dataflow.NewNode("unbound", &mock.Generator{})
	require.NoError(t, err)

	err = dataflow.Wait(n.Run(context.Background()))
	assert.ErrorIs(t, err, dataflow.ErrNotBound)
}

func TestRunUnknownBuffer(t *testing.T) {
	r, err := dataflow.NewRunner()
	require.NoError(t, err)

	n, err := dataflow.NewNode("miswired", &mock.Forwarder{Input: "in"})
	require.NoError(t, err)
	n.RegisterInput("nowhere", "in", true)
	require.NoError(t, r.Add(n))

	require.NoError(t, r.Start(context.Background()))
	err = r.Stop()
	assert.ErrorIs(t, err, buffer.ErrUnknownBuffer)
}

func TestEssentialGating(t *testing.T) {
	ctx := context.Background()
	r, err := dataflow.NewRunner()
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuffer("in", 0))
	require.NoError(t, r.RegisterBuffer("out", 0))

	proc := &mock.Forwarder{Input: "in"}
	n, err := dataflow.NewNode("gated", proc, dataflow.WithMaxRate(0))
	require.NoError(t, err)
	n.RegisterInput("in", "in", true)
	n.RegisterOutput("out")
	require.NoError(t, r.Add(n))
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	// the transform is never invoked while the essential buffer is empty
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, proc.Processed())

	require.NoError(t, r.Buffers().Put(ctx, "in", dataflow.NewMessage("v")))
	assert.Eventually(t, func() bool { return proc.Processed() == 1 }, waitFor, tick)

	m, err := r.Buffers().Get(ctx, "out")
	require.NoError(t, err)
	assert.Equal(t, "v", m.(*dataflow.Message).Payload())
}

func TestInessentialInput(t *testing.T) {
	ctx := context.Background()
	r, err := dataflow.NewRunner()
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuffer("main", 0))
	require.NoError(t, r.RegisterBuffer("aux", 0))

	proc := &recorder{}
	n, err := dataflow.NewNode("inessential", proc, dataflow.WithMaxRate(0))
	require.NoError(t, err)
	n.RegisterInput("main", "main", true)
	n.RegisterInput("aux", "aux", false)
	require.NoError(t, r.Add(n))
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	// an empty inessential buffer resolves to nil without blocking
	require.NoError(t, r.Buffers().Put(ctx, "main", dataflow.NewMessage(1)))
	assert.Eventually(t, func() bool { return len(proc.Calls()) >= 1 }, waitFor, tick)
	call := proc.Calls()[0]
	assert.NotNil(t, call["main"])
	assert.Nil(t, call["aux"])

	// a ready inessential buffer is delivered
	require.NoError(t, r.Buffers().Put(ctx, "aux", dataflow.NewMessage(2)))
	require.NoError(t, r.Buffers().Put(ctx, "main", dataflow.NewMessage(3)))
	assert.Eventually(t, func() bool { return len(proc.Calls()) >= 2 }, waitFor, tick)
	call = proc.Calls()[1]
	assert.NotNil(t, call["main"])
	assert.NotNil(t, call["aux"])
}

func TestToggle(t *testing.T) {
	ctx := context.Background()
	r, err := dataflow.NewRunner()
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuffer("in", 0))
	require.NoError(t, r.RegisterBuffer("out", 0))

	proc := &mock.Toggler{Input: "in"}
	n, err := dataflow.NewNode("toggler", proc,
		dataflow.WithToggleKey("t"),
		dataflow.WithMaxRate(0),
	)
	require.NoError(t, err)
	n.RegisterInput("in", "in", true)
	n.RegisterOutput("out")
	require.NoError(t, r.Add(n))
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	// enabled: the process path runs and records the hop
	require.NoError(t, r.Buffers().Put(ctx, "in", dataflow.NewMessage(1)))
	assert.Eventually(t, func() bool { return proc.Processed() == 1 }, waitFor, tick)
	m, err := r.Buffers().Get(ctx, "out")
	require.NoError(t, err)
	route := m.(*dataflow.Message).Route()
	require.Len(t, route, 1)
	assert.Equal(t, "toggler", route[0].Node)

	// first firing flips to bypass
	r.Events().Press("t")
	assert.Eventually(t, func() bool { return !n.Enabled() }, waitFor, tick)
	require.NoError(t, r.Buffers().Put(ctx, "in", dataflow.NewMessage(2)))
	assert.Eventually(t, func() bool { return proc.Bypassed() == 1 }, waitFor, tick)
	assert.Equal(t, 1, proc.Processed())

	// bypass output carries no route record
	m, err = r.Buffers().Get(ctx, "out")
	require.NoError(t, err)
	assert.Empty(t, m.(*dataflow.Message).Route())

	// second firing flips back
	r.Events().Press("t")
	assert.Eventually(t, func() bool { return n.Enabled() }, waitFor, tick)
	require.NoError(t, r.Buffers().Put(ctx, "in", dataflow.NewMessage(3)))
	assert.Eventually(t, func() bool { return proc.Processed() == 2 }, waitFor, tick)
}

func TestCustomEventHandler(t *testing.T) {
	ctx := context.Background()
	r, err := dataflow.NewRunner()
	require.NoError(t, err)

	n, err := dataflow.NewNode("listener", &mock.Generator{Limit: 1}, dataflow.WithMaxRate(0))
	require.NoError(t, err)
	require.NoError(t, r.Add(n))

	var mu sync.Mutex
	fired := 0
	require.NoError(t, n.RegisterEventHandler("ping", func() {
		mu.Lock()
		fired++
		mu.Unlock()
	}))

	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	// edge-triggered: one invocation per firing, latch cleared after
	r.Events().Set("ping")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, waitFor, tick)
	assert.Eventually(t, func() bool { return !r.Events().IsSet("ping") }, waitFor, tick)

	r.Events().Set("ping")
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 2
	}, waitFor, tick)
}

func TestTransformErrorStopsOnlyFailingNode(t *testing.T) {
	ctx := context.Background()
	r, err := dataflow.NewRunner()
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuffer("in", 0))
	require.NoError(t, r.RegisterBuffer("out", 0))

	errBoom := errors.New("boom")
	failing, err := dataflow.NewNode("failing", &mock.Failer{Err: errBoom}, dataflow.WithMaxRate(0))
	require.NoError(t, err)

	proc := &mock.Forwarder{Input: "in"}
	healthy, err := dataflow.NewNode("healthy", proc, dataflow.WithMaxRate(0))
	require.NoError(t, err)
	healthy.RegisterInput("in", "in", true)
	healthy.RegisterOutput("out")

	require.NoError(t, r.Add(failing, healthy))
	require.NoError(t, r.Start(ctx))

	// the healthy node keeps processing after the failing one halted
	require.NoError(t, r.Buffers().Put(ctx, "in", dataflow.NewMessage(1)))
	assert.Eventually(t, func() bool { return proc.Processed() == 1 }, waitFor, tick)
	require.NoError(t, r.Buffers().Put(ctx, "in", dataflow.NewMessage(2)))
	assert.Eventually(t, func() bool { return proc.Processed() == 2 }, waitFor, tick)

	err = r.Stop()
	assert.ErrorIs(t, err, errBoom)
}

func TestRateCap(t *testing.T) {
	ctx := context.Background()
	r, err := dataflow.NewRunner()
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuffer("out", 0))

	gen := &mock.Generator{}
	n, err := dataflow.NewNode("capped", gen, dataflow.WithMaxRate(50))
	require.NoError(t, err)
	n.RegisterOutput("out")
	require.NoError(t, r.Add(n))
	require.NoError(t, r.Start(ctx))

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, r.Stop())

	// 50/s over 250ms: at most ~13 entries fit, allow scheduler slack
	emitted := gen.Emitted()
	assert.GreaterOrEqual(t, emitted, 2)
	assert.LessOrEqual(t, emitted, 25)
}

func TestPipeline(t *testing.T) {
	ctx := context.Background()
	r, err := dataflow.NewRunner(dataflow.WithName("three-stage"))
	require.NoError(t, err)
	require.NoError(t, r.RegisterBuffer("buf1", 0))
	require.NoError(t, r.RegisterBuffer("buf2", 0))

	a, err := dataflow.NewNode("a", &mock.Generator{Limit: 5}, dataflow.WithMaxRate(200))
	require.NoError(t, err)
	a.RegisterOutput("buf1")

	b, err := dataflow.NewNode("b", &mock.Forwarder{Input: "in"}, dataflow.WithMaxRate(0))
	require.NoError(t, err)
	b.RegisterInput("buf1", "in", true)
	b.RegisterOutput("buf2")

	sink := &mock.Capture{Input: "in"}
	c, err := dataflow.NewNode("c", sink, dataflow.WithMaxRate(0))
	require.NoError(t, err)
	c.RegisterInput("buf2", "in", true)

	require.NoError(t, r.Add(a, b, c))
	require.NoError(t, r.Start(ctx))
	defer r.Stop()

	assert.Eventually(t, func() bool {
		received := sink.Received()
		return len(received) == 5 && len(received[4].Route()) == 3
	}, waitFor, tick)

	received := sink.Received()
	for i, m := range received {
		// original order preserved end to end
		assert.Equal(t, i+1, m.Payload())
		// one route record per hop, in hop order
		route := m.Route()
		require.Len(t, route, 3)
		assert.Equal(t, "a", route[0].Node)
		assert.Equal(t, "b", route[1].Node)
		assert.Equal(t, "c", route[2].Node)
		assert.False(t, route[0].Timestamp.After(route[1].Timestamp))
		assert.False(t, route[1].Timestamp.After(route[2].Timestamp))
	}
}
