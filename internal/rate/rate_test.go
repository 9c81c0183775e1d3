package rate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/dataflow/internal/rate"
)

func TestGatePacing(t *testing.T) {
	ctx := context.Background()
	g := rate.NewGate(50) // 20ms period

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Wait(ctx))
	}
	// first entry is free, nine periods must have passed
	assert.GreaterOrEqual(t, time.Since(start), 9*20*time.Millisecond)
}

func TestGateNoCompensation(t *testing.T) {
	ctx := context.Background()
	g := rate.NewGate(50) // 20ms period

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, g.Wait(ctx))
		time.Sleep(30 * time.Millisecond) // caller overruns the period
	}
	// the gate must not add delay on top of a slow caller
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestGateUncapped(t *testing.T) {
	ctx := context.Background()
	g := rate.NewGate(0)

	start := time.Now()
	for i := 0; i < 1000; i++ {
		require.NoError(t, g.Wait(ctx))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestGateCancellation(t *testing.T) {
	g := rate.NewGate(1) // 1s period
	require.NoError(t, g.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, g.Wait(ctx), context.DeadlineExceeded)
}
