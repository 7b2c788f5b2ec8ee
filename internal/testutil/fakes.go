package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

// FixedSnapshot serves one configuration snapshot.
type FixedSnapshot struct {
	Snap *config.Snapshot
}

// Current returns the snapshot.
func (f FixedSnapshot) Current() *config.Snapshot { return f.Snap }

// SwapSampler returns samples with 10 of 16 GiB RAM used and swap growing
// by stepGB on every call, starting at zero.
func SwapSampler(stepGB float64) telemetry.Sampler {
	var calls atomic.Int64
	return telemetry.SamplerFunc(func() core.TelemetrySample {
		n := calls.Add(1) - 1
		return core.TelemetrySample{
			Timestamp:     time.Now(),
			MemUsedBytes:  10 * core.GiB,
			MemTotalBytes: 16 * core.GiB,
			SwapUsedBytes: core.GBToBytes(stepGB * float64(n)),
		}
	})
}

// InstantGenerator answers every request immediately with text and fixed
// token counts.
func InstantGenerator(text string, inputTokens, outputTokens int) generation.Generator {
	return generation.GeneratorFunc(func(_ context.Context, _ generation.Request) (<-chan generation.Chunk, error) {
		ch := make(chan generation.Chunk, 2)
		ch <- generation.Chunk{Text: text}
		ch <- generation.Chunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
		close(ch)
		return ch, nil
	})
}

// FrameLog is a transport that keeps every frame. OnSend, if set, runs
// after each frame is stored.
type FrameLog struct {
	mu     sync.Mutex
	frames []events.Frame
	OnSend func(events.Frame)
}

// Send records f.
func (l *FrameLog) Send(_ context.Context, f events.Frame) error {
	l.mu.Lock()
	l.frames = append(l.frames, f)
	hook := l.OnSend
	l.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

// Frames returns a copy of the recorded frames.
func (l *FrameLog) Frames() []events.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]events.Frame(nil), l.frames...)
}

// Types returns the recorded frame types in order.
func (l *FrameLog) Types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.frames))
	for i, f := range l.frames {
		out[i] = f.Type
	}
	return out
}

// Last returns the most recent frame. It panics when nothing was sent.
func (l *FrameLog) Last() events.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames[len(l.frames)-1]
}
