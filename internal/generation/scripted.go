package generation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

// ScriptedGenerator replays canned responses in order, one per call, so a
// run can be demonstrated without a model server. The first call for a
// model that is not already "loaded" waits LoadDelay before the first chunk.
type ScriptedGenerator struct {
	LoadDelay  time.Duration
	ChunkDelay time.Duration
	Responses  []string

	mu     sync.Mutex
	calls  int
	loaded string
}

// NewScriptedGenerator returns a generator with the built-in responses.
func NewScriptedGenerator(loadDelay time.Duration) *ScriptedGenerator {
	return &ScriptedGenerator{
		LoadDelay:  loadDelay,
		ChunkDelay: 40 * time.Millisecond,
		Responses:  defaultResponses,
	}
}

// Generate streams the next canned response line by line.
func (g *ScriptedGenerator) Generate(ctx context.Context, req Request) (<-chan Chunk, error) {
	g.mu.Lock()
	text := "[Empty response]"
	if len(g.Responses) > 0 {
		text = g.Responses[g.calls%len(g.Responses)]
	}
	g.calls++
	delay := time.Duration(0)
	if g.loaded != req.Model {
		delay = g.LoadDelay
		g.loaded = req.Model
	}
	chunkDelay := g.ChunkDelay
	g.mu.Unlock()

	out := make(chan Chunk)
	go func() {
		defer close(out)
		if !sleep(ctx, delay) {
			return
		}
		lines := strings.SplitAfter(text, "\n")
		for i, line := range lines {
			if line == "" {
				continue
			}
			if i > 0 && !sleep(ctx, chunkDelay) {
				return
			}
			if !send(ctx, out, Chunk{Text: line}) {
				return
			}
		}
		send(ctx, out, Chunk{
			Done:         true,
			InputTokens:  core.EstimateTokens(int64(len(req.System) + len(req.Prompt))),
			OutputTokens: core.EstimateTokens(int64(len(text))),
		})
	}()
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var defaultResponses = []string{
	`Surveyed the loaded sources and grouped them by origin.
[TOPIC: Competitive Landscape]
Plan: establish a baseline per source, then look for repeated signals across groups.
[TOPIC: Local Inference]`,

	`Several sources describe the same shift toward on-device agent workflows.
[PATTERN: Agent orchestration moving into the product UI]
[PATTERN: Larger local models replacing cloud calls]
Memory footprint grows with each added capability.
[INSIGHT: Context length, not compute, is the binding constraint]`,

	`Cross-referencing technical material against the observed product changes.
[PATTERN: Multi-agent pipelines with shared context]
Retrieval-heavy designs keep large working sets resident.
[INSIGHT: KV cache growth dominates at long context]
[FLAG: Unified memory headroom under 20 percent]`,

	`Community discussion confirms the pain point.
[TOPIC: VRAM Limits]
Users report falling back to smaller models when context grows.
[INSIGHT: Demand exists for larger local context without new hardware]`,

	`Synthesis: the evidence is consistent across product, research and community sources.
[INSIGHT: Memory capacity is the gating factor for local agentic workloads]
[FLAG: Competitors are shipping larger local contexts this cycle]
Recommendation: prioritise memory offload so long-context workloads run on existing machines.`,
}
