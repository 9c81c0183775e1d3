// Package metric measures node throughput. Counters are published through
// expvar, and a rolling window of recent processing times provides the rate
// value recorded into message route trails.
package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const nodesLabel = "dataflow.nodes"

const (
	// MessageCounter counts processed messages.
	MessageCounter = "Messages"
	// LatencyCounter holds the duration of the last processing call.
	LatencyCounter = "Latency"
)

// DefaultWindow is the number of recent measurements a meter keeps for
// rate calculation.
const DefaultWindow = 10

// meters guards expvar publication: expvar panics on duplicate names, so
// same-named meters are shared.
var meters = struct {
	sync.Mutex
	m map[string]*Meter
}{
	m: make(map[string]*Meter),
}

// Meter captures processing metrics of a single named node.
type Meter struct {
	messages *expvar.Int
	latency  *duration

	mu     sync.Mutex
	window []time.Duration
	next   int
	filled int
}

// New returns the meter for the provided node name, creating and
// publishing it on first use. The window argument is only used on
// creation.
func New(name string, window int) *Meter {
	meters.Lock()
	defer meters.Unlock()
	if m, ok := meters.m[name]; ok {
		return m
	}
	if window <= 0 {
		window = DefaultWindow
	}
	m := &Meter{
		messages: expvar.NewInt(key(name, MessageCounter)),
		latency:  &duration{},
		window:   make([]time.Duration, window),
	}
	expvar.Publish(key(name, LatencyCounter), m.latency)
	meters.m[name] = m
	return m
}

// Measure starts timing one processing call. The returned stop function
// captures the measurement.
func (m *Meter) Measure() func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		m.messages.Add(1)
		m.latency.set(elapsed)
		m.record(elapsed)
	}
}

// Rate reports processed messages per second over the rolling window.
func (m *Meter) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.filled == 0 {
		return 0
	}
	var total time.Duration
	for i := 0; i < m.filled; i++ {
		total += m.window[i]
	}
	if total == 0 {
		return 0
	}
	return float64(m.filled) / total.Seconds()
}

// Messages reports the total number of processed messages.
func (m *Meter) Messages() int64 {
	return m.messages.Value()
}

func (m *Meter) record(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window[m.next] = elapsed
	m.next = (m.next + 1) % len(m.window)
	if m.filled < len(m.window) {
		m.filled++
	}
}

func key(name, counter string) string {
	return fmt.Sprintf("%s.%s.%s", nodesLabel, name, counter)
}

// duration formats time.Duration metric values for expvar.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
