package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/logging"
)

// Options are the sampling parameters sent with every chat request.
type Options struct {
	NumPredict    int     `json:"num_predict"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	RepeatPenalty float64 `json:"repeat_penalty"`
}

// DefaultOptions favour focused analytical output.
func DefaultOptions() Options {
	return Options{NumPredict: 800, Temperature: 0.5, TopP: 0.9, RepeatPenalty: 1.1}
}

// OllamaClient streams chat completions from an Ollama server.
type OllamaClient struct {
	baseURL string
	client  *http.Client
	opts    Options
	logger  *logging.Logger
}

// NewOllamaClient creates a client. timeout bounds a whole request, model
// load included.
func NewOllamaClient(baseURL string, timeout time.Duration, opts Options, logger *logging.Logger) *OllamaClient {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		opts:    opts,
		logger:  logger,
	}
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  Options       `json:"options"`
}

type chatChunk struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error"`
}

// Generate posts to /api/chat and streams the line-delimited response.
func (c *OllamaClient) Generate(ctx context.Context, req Request) (<-chan Chunk, error) {
	body, err := json.Marshal(chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.Prompt, Images: req.Images},
		},
		Stream:  true,
		Options: c.opts,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, requestError(err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, core.ErrGeneration(core.CodeBackendStatus,
			fmt.Sprintf("ollama returned %s: %s", resp.Status, strings.TrimSpace(string(msg))))
	}

	out := make(chan Chunk, 16)
	go c.stream(ctx, resp.Body, out)
	return out, nil
}

func (c *OllamaClient) stream(ctx context.Context, body io.ReadCloser, out chan<- Chunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.logger.Warn("skipping invalid chat chunk", "chunk", string(line))
			continue
		}
		if chunk.Error != "" {
			send(ctx, out, Chunk{Err: core.ErrGeneration(core.CodeBackendStatus, chunk.Error)})
			return
		}
		if chunk.Message.Content != "" {
			if !send(ctx, out, Chunk{Text: chunk.Message.Content}) {
				return
			}
		}
		if chunk.Done {
			send(ctx, out, Chunk{
				Done:         true,
				InputTokens:  chunk.PromptEvalCount,
				OutputTokens: chunk.EvalCount,
			})
			return
		}
	}

	err := core.ErrGeneration(core.CodeStreamIncomplete, "stream ended before completion")
	if scanErr := scanner.Err(); scanErr != nil {
		err = err.WithCause(scanErr)
	}
	send(ctx, out, Chunk{Err: err})
}

// Models lists the models pulled on the server.
func (c *OllamaClient) Models(ctx context.Context) ([]string, error) {
	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &payload); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// RunningModel is a model resident in server memory.
type RunningModel struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size"`
	VRAMBytes int64  `json:"size_vram"`
	// ContextLength is the allocated context window. Older servers omit it.
	ContextLength int `json:"context_length"`
}

// Running lists models currently loaded by the server.
func (c *OllamaClient) Running(ctx context.Context) ([]RunningModel, error) {
	var payload struct {
		Models []RunningModel `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/ps", &payload); err != nil {
		return nil, err
	}
	return payload.Models, nil
}

// CheckModels reports which of the wanted models are not pulled.
func (c *OllamaClient) CheckModels(ctx context.Context, wanted ...string) ([]string, error) {
	names, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(names))
	for _, n := range names {
		have[n] = true
	}
	var missing []string
	for _, w := range wanted {
		if !have[w] {
			missing = append(missing, w)
		}
	}
	return missing, nil
}

func (c *OllamaClient) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return requestError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.ErrGeneration(core.CodeBackendStatus, fmt.Sprintf("GET %s: %s", path, resp.Status))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// requestError classifies a failed round trip. A client timeout means the
// server is up but too slow, which callers may retry.
func requestError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.ErrTimeout("ollama request timed out").WithCause(err)
	}
	return core.ErrGeneration(core.CodeBackendUnavailable, "ollama unreachable").WithCause(err)
}
