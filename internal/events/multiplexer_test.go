package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

type sliceTransport struct {
	mu     sync.Mutex
	frames []Frame
	gate   chan struct{} // when set, each Send waits for a token
	failAt int           // 1-based; 0 never fails
}

func (s *sliceTransport) Send(ctx context.Context, f Frame) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.frames)+1 == s.failAt {
		return errors.New("connection reset")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *sliceTransport) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Data.(StatusData).Message)
	}
	return out
}

func TestMultiplexer_PreservesOrder(t *testing.T) {
	mux := NewMultiplexer(4)
	tr := &sliceTransport{}

	errCh := make(chan error, 1)
	go func() { errCh <- mux.Run(context.Background(), tr) }()

	var want []string
	for i := 0; i < 100; i++ {
		msg := fmt.Sprintf("m%03d", i)
		want = append(want, msg)
		require.NoError(t, mux.Publish(Status{Message: msg}))
	}
	mux.Close()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for Run to return")
	}
	assert.Equal(t, want, tr.messages())
}

func TestMultiplexer_BlocksWhenFull(t *testing.T) {
	mux := NewMultiplexer(1)
	tr := &sliceTransport{gate: make(chan struct{})}
	go mux.Run(context.Background(), tr) //nolint:errcheck

	// One frame in flight at the transport, one in the queue.
	require.NoError(t, mux.Publish(Status{Message: "a"}))
	require.NoError(t, mux.Publish(Status{Message: "b"}))

	published := make(chan struct{})
	go func() {
		_ = mux.Publish(Status{Message: "c"})
		close(published)
	}()

	select {
	case <-published:
		t.Fatal("publish should block while the queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	for i := 0; i < 3; i++ {
		tr.gate <- struct{}{}
	}
	select {
	case <-published:
	case <-time.After(time.Second):
		t.Fatal("publish should unblock once the transport drains")
	}
	mux.Close()
	<-mux.Done()
	assert.Equal(t, []string{"a", "b", "c"}, tr.messages())
}

func TestMultiplexer_TransportFailureClosesStream(t *testing.T) {
	mux := NewMultiplexer(1)
	tr := &sliceTransport{failAt: 2}

	errCh := make(chan error, 1)
	go func() { errCh <- mux.Run(context.Background(), tr) }()

	require.NoError(t, mux.Publish(Status{Message: "first"}))
	require.NoError(t, mux.Publish(Status{Message: "second"}))

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run should return on transport failure")
	}

	assert.ErrorIs(t, mux.Publish(Status{Message: "third"}), ErrStreamClosed)
	assert.Error(t, mux.Err())
	assert.Equal(t, []string{"first"}, tr.messages())
}

func TestMultiplexer_PublishUnblocksOnFailure(t *testing.T) {
	mux := NewMultiplexer(1)
	tr := &sliceTransport{gate: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	go mux.Run(ctx, tr) //nolint:errcheck

	require.NoError(t, mux.Publish(Status{Message: "a"}))
	require.NoError(t, mux.Publish(Status{Message: "b"}))

	result := make(chan error, 1)
	go func() {
		// Keep publishing until the queue is full and this call blocks.
		for {
			if err := mux.Publish(Status{Message: "c"}); err != nil {
				result <- err
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(time.Second):
		t.Fatal("blocked Publish should return after the stream fails")
	}
}

func TestMultiplexer_PublishAfterClose(t *testing.T) {
	mux := NewMultiplexer(2)
	mux.Close()
	mux.Close()
	err := mux.Publish(Status{})
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, core.ErrCatTransport, core.GetCategory(err))
	assert.False(t, core.IsRetryable(err))
}

func TestJSONLTransport(t *testing.T) {
	var buf syncBuffer
	tr := NewJSONLTransport(&buf)

	require.NoError(t, tr.Send(context.Background(), Frame{Type: TypeStatus, Data: StatusData{Message: "hi"}}))
	require.NoError(t, tr.Send(context.Background(), Frame{Type: TypeMetric, Data: MetricData{Name: "key_topics", Value: 1}}))

	assert.Equal(t,
		"{\"type\":\"status\",\"data\":{\"message\":\"hi\"}}\n{\"type\":\"metric\",\"data\":{\"name\":\"key_topics\",\"value\":1}}\n",
		buf.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, tr.Send(ctx, Frame{Type: TypeStatus}))
}

func TestFanout(t *testing.T) {
	a, b := &sliceTransport{}, &sliceTransport{failAt: 1}
	fan := Fanout(a, b)
	err := fan.Send(context.Background(), Frame{Type: TypeStatus, Data: StatusData{Message: "x"}})
	assert.Error(t, err)
	assert.Equal(t, []string{"x"}, a.messages())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
