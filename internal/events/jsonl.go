package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLTransport writes one JSON frame per line.
type JSONLTransport struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLTransport creates a transport writing to w.
func NewJSONLTransport(w io.Writer) *JSONLTransport {
	return &JSONLTransport{enc: json.NewEncoder(w)}
}

// Send writes the frame followed by a newline.
func (t *JSONLTransport) Send(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enc.Encode(f); err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return nil
}

// Fanout sends each frame to every transport in order, stopping at the
// first failure.
func Fanout(transports ...Transport) Transport {
	return TransportFunc(func(ctx context.Context, f Frame) error {
		for _, t := range transports {
			if err := t.Send(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
}
