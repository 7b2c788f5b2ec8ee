// Package generation talks to the language-model backend. The scheduler
// sees it only as a stream of text chunks ending in a completion chunk that
// carries token counts.
package generation

import "context"

// Request is one chat-style generation call.
type Request struct {
	Model  string
	System string
	Prompt string
	// Images holds base64-encoded image payloads for vision models.
	Images []string
}

// Chunk is one piece of a streamed response. Exactly one of Text, Done or
// Err is meaningful per chunk. A stream that closes without a Done chunk
// failed.
type Chunk struct {
	Text         string
	Done         bool
	InputTokens  int
	OutputTokens int
	Err          error
}

// Generator starts a streaming generation. The returned channel is closed
// after the Done or Err chunk, or when ctx is cancelled.
type Generator interface {
	Generate(ctx context.Context, req Request) (<-chan Chunk, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (<-chan Chunk, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (<-chan Chunk, error) {
	return f(ctx, req)
}

// send delivers c unless ctx is done first.
func send(ctx context.Context, ch chan<- Chunk, c Chunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
