package telemetry

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// Sampler produces telemetry samples on demand.
type Sampler interface {
	Sample() core.TelemetrySample
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func() core.TelemetrySample

// Sample calls f.
func (f SamplerFunc) Sample() core.TelemetrySample { return f() }

// HostSampler reads memory statistics from the operating system.
type HostSampler struct {
	mu        sync.Mutex
	last      core.TelemetrySample
	staleness int

	readMemory func() (*mem.VirtualMemoryStat, error)
	readSwap   func() (*mem.SwapMemoryStat, error)
	now        func() time.Time
}

// NewHostSampler creates a sampler backed by gopsutil.
func NewHostSampler() *HostSampler {
	return &HostSampler{
		readMemory: mem.VirtualMemory,
		readSwap:   mem.SwapMemory,
		now:        time.Now,
	}
}

// Sample reads current memory and swap usage. If either read fails the
// previous good values are returned with Staleness incremented.
func (s *HostSampler) Sample() core.TelemetrySample {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	vm, err := s.readMemory()
	if err != nil || vm == nil {
		return s.staleLocked(now)
	}
	sw, err := s.readSwap()
	if err != nil || sw == nil {
		return s.staleLocked(now)
	}

	s.staleness = 0
	s.last = core.TelemetrySample{
		Timestamp:     now,
		MemUsedBytes:  vm.Used,
		MemTotalBytes: vm.Total,
		SwapUsedBytes: sw.Used,
	}
	return s.last
}

func (s *HostSampler) staleLocked(now time.Time) core.TelemetrySample {
	s.staleness++
	out := s.last
	out.Timestamp = now
	out.Staleness = s.staleness
	return out
}
