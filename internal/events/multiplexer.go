package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// ErrStreamClosed is returned by Publish once the stream can no longer
// deliver events.
var ErrStreamClosed error = core.ErrTransport("event stream closed")

// DefaultQueueSize bounds events waiting for the transport.
const DefaultQueueSize = 64

// Transport delivers encoded frames to a display client.
type Transport interface {
	Send(ctx context.Context, f Frame) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, f Frame) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, fr Frame) error { return f(ctx, fr) }

// Multiplexer forwards events from a single producer to a transport in the
// order they were published. A full queue blocks the producer; events are
// never dropped.
type Multiplexer struct {
	queue chan Event

	closing   chan struct{}
	closeOnce sync.Once

	failed   chan struct{}
	failOnce sync.Once
	err      error

	done chan struct{}
}

// NewMultiplexer creates a multiplexer with the given queue size.
func NewMultiplexer(size int) *Multiplexer {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Multiplexer{
		queue:   make(chan Event, size),
		closing: make(chan struct{}),
		failed:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Publish enqueues an event, blocking while the queue is full. It returns
// ErrStreamClosed if the transport has failed or the multiplexer is closed.
func (m *Multiplexer) Publish(e Event) error {
	select {
	case <-m.failed:
		return ErrStreamClosed
	case <-m.closing:
		return ErrStreamClosed
	default:
	}

	select {
	case m.queue <- e:
		return nil
	case <-m.failed:
		return ErrStreamClosed
	}
}

// Run consumes the queue until Close drains it, the transport fails, or ctx
// is cancelled. It must be called exactly once.
func (m *Multiplexer) Run(ctx context.Context, t Transport) error {
	defer close(m.done)

	for {
		select {
		case e := <-m.queue:
			if err := m.deliver(ctx, t, e); err != nil {
				return err
			}
		case <-m.closing:
			return m.drain(ctx, t)
		case <-ctx.Done():
			m.fail(ctx.Err())
			return ctx.Err()
		}
	}
}

func (m *Multiplexer) drain(ctx context.Context, t Transport) error {
	for {
		select {
		case e := <-m.queue:
			if err := m.deliver(ctx, t, e); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (m *Multiplexer) deliver(ctx context.Context, t Transport, e Event) error {
	frame, err := Encode(e)
	if err != nil {
		m.fail(err)
		return err
	}
	if err := t.Send(ctx, frame); err != nil {
		err = fmt.Errorf("sending %s: %w", frame.Type, err)
		m.fail(err)
		return err
	}
	return nil
}

func (m *Multiplexer) fail(err error) {
	m.failOnce.Do(func() {
		m.err = err
		close(m.failed)
	})
}

// Close stops accepting events. Run delivers what is already queued and
// returns. The producer must not Publish concurrently with Close.
func (m *Multiplexer) Close() {
	m.closeOnce.Do(func() { close(m.closing) })
}

// Done is closed when Run returns.
func (m *Multiplexer) Done() <-chan struct{} {
	return m.done
}

// Err returns the error that failed the stream, if any. Only valid after
// Done is closed or Publish returned ErrStreamClosed.
func (m *Multiplexer) Err() error {
	select {
	case <-m.failed:
		return m.err
	default:
		return nil
	}
}
