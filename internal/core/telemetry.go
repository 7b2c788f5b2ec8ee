package core

import "time"

// GiB is the binary gigabyte used for every size shown on the wire.
const GiB = 1 << 30

// BytesToGB converts a byte count to gigabytes.
func BytesToGB(b uint64) float64 {
	return float64(b) / GiB
}

// GBToBytes converts gigabytes to a byte count.
func GBToBytes(gb float64) uint64 {
	if gb <= 0 {
		return 0
	}
	return uint64(gb * GiB)
}

// TelemetrySample is one reading of host memory pressure, optionally
// annotated with the workload that was resident when it was taken.
// Samples are values: annotation returns a copy.
type TelemetrySample struct {
	Timestamp     time.Time `json:"timestamp"`
	MemUsedBytes  uint64    `json:"mem_used_bytes"`
	MemTotalBytes uint64    `json:"mem_total_bytes"`
	SwapUsedBytes uint64    `json:"swap_used_bytes"`
	ContextTokens int       `json:"context_tokens"`
	KVCacheBytes  uint64    `json:"kv_cache_bytes"`
	LoadedModel   string    `json:"loaded_model"`

	// Staleness counts consecutive failed host reads this value was carried
	// over for. Zero means the reading is fresh.
	Staleness int `json:"staleness,omitempty"`
	// Gap is set when older buffered samples were dropped just before this one.
	Gap bool `json:"gap,omitempty"`
}

// WithWorkload returns a copy of the sample annotated with the resident
// model and context size.
func (s TelemetrySample) WithWorkload(model string, contextTokens int, kvCacheBytes uint64) TelemetrySample {
	s.LoadedModel = model
	s.ContextTokens = contextTokens
	s.KVCacheBytes = kvCacheBytes
	return s
}

// MemPercent returns resident memory usage as a percentage of total.
func (s TelemetrySample) MemPercent() float64 {
	if s.MemTotalBytes == 0 {
		return 0
	}
	p := float64(s.MemUsedBytes) / float64(s.MemTotalBytes) * 100
	if p > 100 {
		return 100
	}
	return p
}

// IsStale reports whether the sample carries a previous reading.
func (s TelemetrySample) IsStale() bool {
	return s.Staleness > 0
}
