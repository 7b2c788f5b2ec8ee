// Package crash decides when a run has exhausted memory.
//
// The decision is delta-based: the host may already have swap in use before
// a run starts, so only growth above the run's baseline counts.
package crash

import "github.com/hugo-lorenzo-mato/memwall/internal/core"

// Evaluate reports whether the sample represents a simulated out-of-memory
// condition. It is pure and deterministic in its four inputs.
func Evaluate(sample, baseline core.TelemetrySample, thresholdBytes uint64, offloadEnabled bool) bool {
	if offloadEnabled {
		return false
	}
	delta := SwapDelta(sample, baseline)
	return delta > 0 && uint64(delta) > thresholdBytes
}

// SwapDelta is the signed swap growth of sample over baseline.
func SwapDelta(sample, baseline core.TelemetrySample) int64 {
	return int64(sample.SwapUsedBytes) - int64(baseline.SwapUsedBytes)
}

// RequiredCapacity estimates the memory the workload would have needed:
// what was resident plus what spilled past the baseline.
func RequiredCapacity(sample, baseline core.TelemetrySample) uint64 {
	delta := SwapDelta(sample, baseline)
	if delta < 0 {
		delta = 0
	}
	return sample.MemUsedBytes + uint64(delta)
}

// NewRecord builds the crash record for a sample that tripped Evaluate.
func NewRecord(sample, baseline core.TelemetrySample, processed, total int) core.CrashRecord {
	return core.CrashRecord{
		Reason:                core.CrashReasonUnifiedMemory,
		Processed:             processed,
		Total:                 total,
		RequiredCapacityBytes: RequiredCapacity(sample, baseline),
		SwapDeltaBytes:        SwapDelta(sample, baseline),
		Snapshot:              sample,
	}
}
