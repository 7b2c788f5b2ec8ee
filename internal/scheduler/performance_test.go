package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPressurePerformance(t *testing.T) {
	tests := []struct {
		name    string
		mem     float64
		offload bool
		want    string
	}{
		{"idle", 50, false, PerfOptimal},
		{"onset", 80, false, PerfOptimal},
		{"steep", 90, false, PerfDegraded},
		{"saturated", 99, false, PerfCritical},
		{"saturated with offload", 99, true, PerfOptimal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pressurePerformance(tt.mem, tt.offload)
			assert.Equal(t, tt.want, p.Status)
			assert.False(t, p.Measured)
		})
	}
}

func TestDegradation_MonotonicAndCapped(t *testing.T) {
	prev := 0.0
	for mem := 0.0; mem <= 100; mem += 5 {
		d := degradation(mem, false)
		assert.GreaterOrEqual(t, d, prev, "mem %.0f", mem)
		assert.LessOrEqual(t, d, 0.9)
		prev = d
		assert.LessOrEqual(t, degradation(mem, true), offloadMaxDegrade)
	}
	assert.Equal(t, 200*time.Millisecond, pressurePerformance(10, false).TTFT)
}

func TestMeasuredPerformance(t *testing.T) {
	p := measuredPerformance(100*time.Millisecond, 1100*time.Millisecond, 50)
	assert.True(t, p.Measured)
	assert.InDelta(t, 50.0, p.TokensPerSecond, 1e-9)
	assert.Equal(t, 20*time.Millisecond, p.Latency)
	assert.Equal(t, PerfOptimal, p.Status)

	assert.Equal(t, PerfDegraded, measuredPerformance(0, time.Second, 20).Status)

	none := measuredPerformance(time.Second, time.Second, 0)
	assert.Zero(t, none.TokensPerSecond)
	assert.Equal(t, PerfCritical, none.Status)
}
