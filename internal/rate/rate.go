// Package rate paces repeated calls to a soft maximum rate. The gate
// guarantees a minimum wall-clock period between successive entries and
// never compensates for overruns: if the caller itself exceeds the period,
// lost time is not recovered.
package rate

import (
	"context"
	"time"
)

// Gate paces entries to at most the configured rate. It is not safe for
// concurrent use; each worker loop owns its own gate.
type Gate struct {
	period time.Duration
	last   time.Time
}

// NewGate returns a gate allowing up to perSecond entries per second.
// A non-positive rate disables pacing.
func NewGate(perSecond int) *Gate {
	g := &Gate{}
	if perSecond > 0 {
		g.period = time.Second / time.Duration(perSecond)
	}
	return g
}

// Wait blocks until at least one period has passed since the previous
// entry, or ctx is done. The first entry never waits.
func (g *Gate) Wait(ctx context.Context) error {
	if g.period == 0 {
		return nil
	}
	if !g.last.IsZero() {
		if d := g.period - time.Since(g.last); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	g.last = time.Now()
	return nil
}
