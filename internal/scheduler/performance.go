package scheduler

import (
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/events"
)

// Baseline generation figures for an unpressured host.
const (
	baseTTFT          = 200 * time.Millisecond
	baseTokensPerSec  = 45.0
	baseTokenLatency  = 22 * time.Millisecond
	pressureOnsetPct  = 70.0
	pressureSteepPct  = 85.0
	offloadMaxDegrade = 0.15
)

// Performance status labels.
const (
	PerfOptimal  = "optimal"
	PerfDegraded = "degraded"
	PerfCritical = "critical"
)

// degradation maps memory percent to a 0..0.9 slowdown factor. With offload
// the curve is capped low; without it, it steepens past 85%.
func degradation(memPercent float64, offload bool) float64 {
	if memPercent < pressureOnsetPct {
		return 0
	}
	if offload {
		return min(offloadMaxDegrade, (memPercent-pressureOnsetPct)/200)
	}
	if memPercent < pressureSteepPct {
		return (memPercent - pressureOnsetPct) / 50
	}
	return 0.3 + ((memPercent-pressureSteepPct)/15)*0.6
}

// pressurePerformance derives expected generation speed from memory
// pressure alone.
func pressurePerformance(memPercent float64, offload bool) events.Performance {
	d := degradation(memPercent, offload)
	ttft := time.Duration(float64(baseTTFT) * (1 + d*5))
	tps := baseTokensPerSec * (1 - d*0.67)
	latency := time.Duration(float64(baseTokenLatency) * (1 + d*3))

	status := PerfCritical
	switch {
	case ttft < 500*time.Millisecond && tps > 35:
		status = PerfOptimal
	case ttft < time.Second && tps > 20:
		status = PerfDegraded
	}
	return events.Performance{TTFT: ttft, TokensPerSecond: tps, Latency: latency, Status: status}
}

// measuredPerformance reports an actual generation. Throughput excludes
// the time to first token.
func measuredPerformance(ttft, total time.Duration, outputTokens int) events.Performance {
	var tps float64
	var latency time.Duration
	if gen := total - ttft; gen > 0 && outputTokens > 0 {
		tps = float64(outputTokens) / gen.Seconds()
		latency = gen / time.Duration(outputTokens)
	}
	status := PerfCritical
	switch {
	case tps > 30:
		status = PerfOptimal
	case tps > 15:
		status = PerfDegraded
	}
	return events.Performance{TTFT: ttft, TokensPerSecond: tps, Latency: latency, Status: status, Measured: true}
}
