/*
Package dataflow allows to build and execute in-process dataflow pipelines.

Concept

A pipeline is a graph of independent workers called nodes, connected by
named bounded FIFO queues called buffers. Every node pulls messages from
its input buffers, transforms or bypasses them and pushes the result to
its output buffers. Buffers mediate all communication: nodes never talk
to each other directly, and a full downstream buffer stalls its producer,
propagating backpressure upstream.

Nodes

The function of a node is implemented by a Processor. Processors that
support runtime enable/disable toggling additionally implement the
Toggleable interface; its Bypass method defines the node behavior while
disabled. Nodes are instantiated with a processor and functional options:

	n, err := dataflow.NewNode("tracker", proc,
		dataflow.WithMaxRate(30),
		dataflow.WithToggleKey("t"),
	)
	n.RegisterInput("frames", "frame", true)
	n.RegisterOutput("tracked")

An essential input makes the node wait until a message is available
before processing; an inessential one resolves to nil instead of
blocking the iteration.

Execution

The runner owns the pipeline: it holds the buffer and event registries,
binds nodes and defines the topology. Once buffers are registered and
nodes are added, Start launches every node loop in its own goroutine
until the context is done:

	r, err := dataflow.NewRunner()
	r.RegisterBuffer("frames", 1)
	r.RegisterBuffer("tracked", 1)
	r.Add(n)
	r.Start(ctx)
	defer r.Stop()

A failed node terminates only its own loop; the rest of the pipeline
keeps running. Every processed message accumulates a route record per
hop with the node name, its measured rate and a timestamp, giving a
verifiable processing trail.
*/
package dataflow
