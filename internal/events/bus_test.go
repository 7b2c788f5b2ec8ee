package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func statusEnvelope(runID, msg string) Envelope {
	return Envelope{RunID: runID, Frame: Frame{Type: TypeStatus, Data: StatusData{Message: msg}}}
}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Publish(statusEnvelope("run-1", "loading"))

	select {
	case received := <-ch:
		if received.RunID != "run-1" {
			t.Errorf("expected run-1, got %s", received.RunID)
		}
		if received.Frame.Type != TypeStatus {
			t.Errorf("expected %s, got %s", TypeStatus, received.Frame.Type)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for envelope")
	}
}

func TestBus_SubscribeByRun(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	runCh := bus.Subscribe("run-2")
	allCh := bus.Subscribe()

	bus.Publish(statusEnvelope("run-1", "a"))
	bus.Publish(statusEnvelope("run-2", "b"))

	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("allCh should receive envelope %d", i)
		}
	}

	select {
	case received := <-runCh:
		if received.RunID != "run-2" {
			t.Errorf("expected run-2, got %s", received.RunID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("runCh should receive run-2 envelope")
	}

	select {
	case extra := <-runCh:
		t.Errorf("runCh should not receive other runs, got %s", extra.RunID)
	default:
	}
}

func TestBus_RingBufferDropsOldest(t *testing.T) {
	bus := NewBus(5)
	defer bus.Close()

	ch := bus.Subscribe()
	for i := 0; i < 10; i++ {
		bus.Publish(statusEnvelope("run-1", "tick"))
	}

	if bus.DroppedCount() == 0 {
		t.Error("expected some envelopes to be dropped")
	}

	received := 0
drainLoop:
	for {
		select {
		case <-ch:
			received++
		default:
			break drainLoop
		}
	}
	if received != 5 {
		t.Errorf("expected a full buffer of 5, got %d", received)
	}
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus(100)
	defer bus.Close()

	ch := bus.Subscribe()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(statusEnvelope("run-1", "concurrent"))
			}
		}()
	}
	wg.Wait()

	received := 0
drainLoop:
	for {
		select {
		case <-ch:
			received++
		default:
			break drainLoop
		}
	}
	if received == 0 {
		t.Error("should have received some envelopes")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestBus_SubscribeAfterClose(t *testing.T) {
	bus := NewBus(10)
	bus.Close()

	if _, ok := <-bus.Subscribe(); ok {
		t.Error("subscription on a closed bus should be closed")
	}
}

func TestBus_TapMirrorsDeliveredFrames(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()
	ch := bus.Subscribe("run-9")

	var sent []Frame
	next := TransportFunc(func(_ context.Context, f Frame) error {
		sent = append(sent, f)
		return nil
	})
	tap := bus.Tap("run-9", next)

	if err := tap.Send(context.Background(), Frame{Type: TypeStatus}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected frame forwarded to next transport")
	}
	select {
	case env := <-ch:
		if env.RunID != "run-9" {
			t.Errorf("expected run-9, got %s", env.RunID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected mirrored envelope")
	}
}

func TestBus_TapSkipsFailedFrames(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()
	ch := bus.Subscribe()

	tap := bus.Tap("run-1", TransportFunc(func(context.Context, Frame) error {
		return errors.New("client gone")
	}))
	if err := tap.Send(context.Background(), Frame{Type: TypeStatus}); err == nil {
		t.Fatal("expected error from failing transport")
	}
	select {
	case <-ch:
		t.Error("failed frames must not be mirrored")
	default:
	}
}
