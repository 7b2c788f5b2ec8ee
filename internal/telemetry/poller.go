package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

const (
	// DefaultPollInterval is the sampling cadence during blocking calls.
	DefaultPollInterval = 200 * time.Millisecond
	// DefaultPollCapacity bounds buffered samples between drains.
	DefaultPollCapacity = 256
)

// Poller samples in the background until stopped. Its only link to the
// consumer is the buffered sample channel.
type Poller struct {
	sampler  Sampler
	interval time.Duration
	buf      chan core.TelemetrySample

	dropped atomic.Int64
	stopCh  chan struct{}
	done    chan struct{}
	stopped atomic.Bool
}

// StartPoller takes one sample immediately and then one per interval.
func StartPoller(sampler Sampler, interval time.Duration, capacity int) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if capacity <= 0 {
		capacity = DefaultPollCapacity
	}

	p := &Poller{
		sampler:  sampler,
		interval: interval,
		buf:      make(chan core.TelemetrySample, capacity),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

func (p *Poller) loop() {
	defer close(p.done)

	p.push(p.sampler.Sample())

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.push(p.sampler.Sample())
		}
	}
}

// push never blocks. A concurrent Drain only ever removes from the head, so
// dropping the head here cannot reorder what remains.
func (p *Poller) push(s core.TelemetrySample) {
	for {
		select {
		case p.buf <- s:
			return
		default:
		}
		// Full: discard the oldest reading and flag the gap on this one.
		select {
		case <-p.buf:
			p.dropped.Add(1)
			s.Gap = true
		default:
		}
	}
}

// Drain returns every buffered sample in the order it was taken.
func (p *Poller) Drain() []core.TelemetrySample {
	var out []core.TelemetrySample
	for {
		select {
		case s := <-p.buf:
			out = append(out, s)
		default:
			return out
		}
	}
}

// Stop halts sampling and waits for the loop to exit. Samples taken before
// Stop remain available to Drain. Safe to call more than once.
func (p *Poller) Stop() {
	if p.stopped.CompareAndSwap(false, true) {
		close(p.stopCh)
	}
	<-p.done
}

// Dropped reports how many samples were discarded on overflow.
func (p *Poller) Dropped() int64 {
	return p.dropped.Load()
}
