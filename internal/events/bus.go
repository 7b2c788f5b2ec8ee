package events

import (
	"context"
	"sync"
	"sync/atomic"
)

// Envelope is a frame tagged with the run that produced it.
type Envelope struct {
	RunID string `json:"run_id"`
	Frame Frame  `json:"frame"`
}

type subscriber struct {
	ch     chan Envelope
	runIDs map[string]bool // Empty means all runs
}

// Bus broadcasts frames from live runs to passive observers such as a
// monitoring page. Observers are lossy: a slow observer loses its oldest
// envelopes rather than stalling a run. The primary display client of a
// run is fed by its Multiplexer, never by the Bus.
type Bus struct {
	mu           sync.RWMutex
	subscribers  []*subscriber
	bufferSize   int
	droppedCount int64
	closed       bool
}

// NewBus creates a bus with the specified per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{bufferSize: bufferSize}
}

// Subscribe returns a channel receiving envelopes for the given runs, or
// for every run if none are given.
func (b *Bus) Subscribe(runIDs ...string) <-chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		ch:     make(chan Envelope, b.bufferSize),
		runIDs: make(map[string]bool),
	}
	for _, id := range runIDs {
		sub.runIDs[id] = true
	}
	if b.closed {
		close(sub.ch)
		return sub.ch
	}
	b.subscribers = append(b.subscribers, sub)
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.ch != ch {
			result = append(result, sub)
		} else {
			close(sub.ch)
		}
	}
	b.subscribers = result
}

// Publish delivers an envelope to matching subscribers, dropping each
// subscriber's oldest envelope when its buffer is full.
func (b *Bus) Publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subscribers {
		if len(sub.runIDs) > 0 && !sub.runIDs[env.RunID] {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			select {
			case <-sub.ch:
				atomic.AddInt64(&b.droppedCount, 1)
			default:
			}
			select {
			case sub.ch <- env:
			default:
				atomic.AddInt64(&b.droppedCount, 1)
			}
		}
	}
}

// Tap returns a transport that sends to next and, once delivered, mirrors
// the frame onto the bus under runID.
func (b *Bus) Tap(runID string, next Transport) Transport {
	return TransportFunc(func(ctx context.Context, f Frame) error {
		if err := next.Send(ctx, f); err != nil {
			return err
		}
		b.Publish(Envelope{RunID: runID, Frame: f})
		return nil
	})
}

// DroppedCount returns the total number of dropped envelopes.
func (b *Bus) DroppedCount() int64 {
	return atomic.LoadInt64(&b.droppedCount)
}

// Close closes the bus and all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, sub := range b.subscribers {
		close(sub.ch)
	}
	b.subscribers = nil
}
