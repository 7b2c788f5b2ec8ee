package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

func collect(t *testing.T, ch <-chan Chunk) []Chunk {
	t.Helper()
	var out []Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OllamaClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOllamaClient(srv.URL, 5*time.Second, DefaultOptions(), nil)
}

func TestOllamaClient_GenerateStreams(t *testing.T) {
	requests := make(chan chatRequest, 1)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		requests <- req
		fmt.Fprintln(w, `{"message":{"content":"Hello "},"done":false}`)
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"message":{"content":"world"},"done":false}`)
		fmt.Fprintln(w, `{"message":{"content":""},"done":true,"prompt_eval_count":120,"eval_count":42}`)
	})

	ch, err := client.Generate(context.Background(), Request{
		Model:  "llava:13b",
		System: "sys",
		Prompt: "describe",
		Images: []string{"aW1n"},
	})
	require.NoError(t, err)
	chunks := collect(t, ch)

	require.Len(t, chunks, 3)
	assert.Equal(t, "Hello ", chunks[0].Text)
	assert.Equal(t, "world", chunks[1].Text)
	assert.True(t, chunks[2].Done)
	assert.Equal(t, 120, chunks[2].InputTokens)
	assert.Equal(t, 42, chunks[2].OutputTokens)

	got := <-requests
	assert.Equal(t, "llava:13b", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, []string{"aW1n"}, got.Messages[1].Images)
	assert.Equal(t, 800, got.Options.NumPredict)
}

func TestOllamaClient_IncompleteStream(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"partial"},"done":false}`)
	})

	ch, err := client.Generate(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	chunks := collect(t, ch)

	require.Len(t, chunks, 2)
	require.Error(t, chunks[1].Err)
	assert.True(t, core.IsCategory(chunks[1].Err, core.ErrCatGeneration))
	assert.Contains(t, chunks[1].Err.Error(), core.CodeStreamIncomplete)
}

func TestOllamaClient_ErrorLine(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"error":"model requires more system memory"}`)
	})

	ch, err := client.Generate(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	chunks := collect(t, ch)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Err.Error(), "more system memory")
}

func TestOllamaClient_BadStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	})

	_, err := client.Generate(context.Background(), Request{Model: "missing"})
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllamaClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewOllamaClient(url, time.Second, DefaultOptions(), nil)
	_, err := client.Generate(context.Background(), Request{Model: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), core.CodeBackendUnavailable)
}

func TestOllamaClient_SlowServerTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	client := NewOllamaClient(srv.URL, 50*time.Millisecond, DefaultOptions(), nil)

	tests := []struct {
		name string
		call func() error
	}{
		{"chat", func() error {
			_, err := client.Generate(context.Background(), Request{Model: "m"})
			return err
		}},
		{"ps", func() error {
			_, err := client.Running(context.Background())
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, core.ErrCatTimeout, core.GetCategory(err))
			assert.True(t, core.IsRetryable(err))
		})
	}
}

func TestOllamaClient_CancelClosesStream(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"message":{"content":"first"},"done":false}`)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := client.Generate(ctx, Request{Model: "m"})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "first", first.Text)
	cancel()
	collect(t, ch)
}

func TestOllamaClient_ModelsAndRunning(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"llama3.1:8b"},{"name":"qwen2.5:14b"}]}`)
		case "/api/ps":
			fmt.Fprint(w, `{"models":[{"name":"qwen2.5:14b","size":9000,"size_vram":4000}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	names, err := client.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.1:8b", "qwen2.5:14b"}, names)

	running, err := client.Running(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, int64(4000), running[0].VRAMBytes)

	missing, err := client.CheckModels(ctx, "llama3.1:8b", "llava:13b")
	require.NoError(t, err)
	assert.Equal(t, []string{"llava:13b"}, missing)
}
