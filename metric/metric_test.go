package metric_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/dataflow/metric"
)

func TestMeter(t *testing.T) {
	m := metric.New("test-meter", 4)
	assert.Equal(t, int64(0), m.Messages())
	assert.Equal(t, float64(0), m.Rate())

	for i := 0; i < 6; i++ {
		stop := m.Measure()
		time.Sleep(time.Millisecond)
		stop()
	}

	assert.Equal(t, int64(6), m.Messages())
	// six 1ms measurements through a window of four
	rate := m.Rate()
	assert.Greater(t, rate, float64(0))
	assert.Less(t, rate, float64(1000))
}

func TestMeterReuse(t *testing.T) {
	// same-named meters share published counters
	m1 := metric.New("test-reuse", 0)
	m2 := metric.New("test-reuse", 16)
	assert.Same(t, m1, m2)

	stop := m1.Measure()
	stop()
	assert.Equal(t, m1.Messages(), m2.Messages())
}
