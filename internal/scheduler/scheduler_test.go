package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/corpus"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
)

// seqSampler returns swap values in order and repeats the last one.
type seqSampler struct {
	mu     sync.Mutex
	swapGB []float64
	calls  int
}

func (s *seqSampler) Sample() core.TelemetrySample {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.swapGB)-1)
	s.calls++
	return core.TelemetrySample{
		Timestamp:     time.Unix(int64(s.calls), 0),
		MemUsedBytes:  8 * core.GiB,
		MemTotalBytes: 16 * core.GiB,
		SwapUsedBytes: core.GBToBytes(s.swapGB[i]),
	}
}

type recorder struct {
	mu        sync.Mutex
	events    []events.Event
	attempts  int
	failAt    int
	onPublish func(events.Event)
}

func (r *recorder) Publish(e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if r.failAt > 0 && r.attempts >= r.failAt {
		return events.ErrStreamClosed
	}
	r.events = append(r.events, e)
	if r.onPublish != nil {
		r.onPublish(e)
	}
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) statuses() []string {
	var out []string
	for _, e := range r.events {
		if st, ok := e.(events.Status); ok {
			out = append(out, st.Message)
		}
	}
	return out
}

// scriptGen streams two lines per call. Calls listed in fail return an
// error instead.
type scriptGen struct {
	mu    sync.Mutex
	calls []generation.Request
	fail  map[int]error
}

func (g *scriptGen) Generate(_ context.Context, req generation.Request) (<-chan generation.Chunk, error) {
	g.mu.Lock()
	idx := len(g.calls)
	g.calls = append(g.calls, req)
	err := g.fail[idx]
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := make(chan generation.Chunk, 4)
	ch <- generation.Chunk{Text: "Reviewed the batch [TOPIC: Memory Wall]\nSecond "}
	ch <- generation.Chunk{Text: "line [INSIGHT: Offload helps]"}
	ch <- generation.Chunk{Done: true, InputTokens: 100, OutputTokens: 50}
	close(ch)
	return ch, nil
}

func (g *scriptGen) models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	for i, c := range g.calls {
		out[i] = c.Model
	}
	return out
}

func testConfig(docs int, offload bool) core.ScenarioConfig {
	return core.ScenarioConfig{
		Scenario:            "test",
		Tier:                "unit",
		TotalDocuments:      docs,
		BatchSize:           4,
		CrashThresholdBytes: core.GBToBytes(2.0),
		OffloadEnabled:      offload,
		MaxContextTokens:    60000,
		// Long enough that the poller only takes its initial sample.
		PollInterval: time.Hour,
		PollCapacity: 16,
		Phases: []core.Phase{
			{ID: "review", Name: "Review", TriggerPercent: 0, Model: "text-a", Agent: "@Reviewer", StepType: core.StepPlan},
			{ID: "synthesis", Name: "Synthesis", TriggerPercent: 100, Model: "text-b", Agent: "@Strategist", StepType: core.StepThought, Final: true},
		},
		Models: map[string]core.ModelSpec{
			"text-a": {Name: "text-a", WeightsGB: 4},
			"text-b": {Name: "text-b", WeightsGB: 8},
		},
		TextModel: "text-a",
	}
}

type harness struct {
	cfg     core.ScenarioConfig
	sampler *seqSampler
	gen     *scriptGen
	pub     *recorder
	source  corpus.Source
}

func newHarness(docs int, offload bool, swapGB ...float64) *harness {
	if len(swapGB) == 0 {
		swapGB = []float64{0}
	}
	return &harness{
		cfg:     testConfig(docs, offload),
		sampler: &seqSampler{swapGB: swapGB},
		gen:     &scriptGen{},
		pub:     &recorder{},
		source:  corpus.NewSyntheticSource([]corpus.Slice{{Category: core.CategoryPaper, Count: docs, AvgSizeBytes: 400}}),
	}
}

func (h *harness) run(t *testing.T, ctx context.Context) Result {
	t.Helper()
	s, err := New(h.cfg, Deps{
		Sampler:   h.sampler,
		Generator: h.gen,
		Source:    h.source,
		Publisher: h.pub,
	}, Options{RunID: "run-1", ContentLimitBytes: 256, Costs: CostRates{CloudPerMillion: 10, WithoutOffloadFactor: 3}})
	require.NoError(t, err)
	return s.Run(ctx)
}

func TestScheduler_BatchBoundaries(t *testing.T) {
	h := newHarness(12, false)
	res := h.run(t, context.Background())
	require.Equal(t, core.RunCompleted, res.Status)

	// For each stored status, the most recent Document event is the
	// document that closed its batch.
	closers := map[int][]int{}
	lastDoc := -1
	for _, e := range h.pub.events {
		switch ev := e.(type) {
		case events.Document:
			lastDoc = ev.Index
		case events.DocumentStatus:
			if ev.Status == core.DocStored {
				closers[lastDoc] = append(closers[lastDoc], ev.Index)
			}
		}
	}
	assert.Equal(t, map[int][]int{
		3:  {0, 1, 2, 3},
		7:  {4, 5, 6, 7},
		11: {8, 9, 10, 11},
	}, closers)
	assert.Equal(t, []string{"text-a", "text-a", "text-b"}, h.gen.models())
}

func TestScheduler_ModelSwapStatuses(t *testing.T) {
	h := newHarness(8, false)
	h.run(t, context.Background())

	statuses := h.pub.statuses()
	assert.Contains(t, statuses, "Loading model: text-a...")
	assert.Contains(t, statuses, "Offloading model: text-a...")
	assert.Contains(t, statuses, "Loading model: text-b...")
	assert.NotContains(t, statuses, "Offloading model: ...")
}

func TestScheduler_ScenarioA_CrashWithoutOffload(t *testing.T) {
	h := newHarness(8, false, 2.0, 2.5, 3.0, 3.5, 4.0, 4.3)
	res := h.run(t, context.Background())

	require.Equal(t, core.RunCrashed, res.Status)
	require.NotNil(t, res.Crash)
	assert.Equal(t, 1, h.pub.count(events.TypeCrash))
	assert.Zero(t, h.pub.count(events.TypeComplete))
	assert.Zero(t, h.pub.count(events.TypeImpactSummary))

	types := h.pub.types()
	assert.Equal(t, events.TypeCrash, types[len(types)-1])
	assert.Equal(t, events.TypeMemory, types[len(types)-2])

	crashEv := h.pub.events[len(h.pub.events)-1].(events.Crash)
	assert.InDelta(t, 2.3, core.BytesToGB(uint64(crashEv.Record.SwapDeltaBytes)), 1e-6)
	assert.Equal(t, core.CrashReasonUnifiedMemory, crashEv.Record.Reason)
	assert.Equal(t, 4, crashEv.Record.Processed)
	assert.Equal(t, 8, crashEv.Record.Total)
}

func TestScheduler_ScenarioB_OffloadCompletes(t *testing.T) {
	h := newHarness(8, true, 2.0, 2.5, 3.0, 3.5, 4.0, 4.3)
	res := h.run(t, context.Background())

	require.Equal(t, core.RunCompleted, res.Status)
	assert.Nil(t, res.Crash)
	assert.Zero(t, h.pub.count(events.TypeCrash))
	assert.Equal(t, 1, h.pub.count(events.TypeComplete))
	assert.Equal(t, 1, h.pub.count(events.TypeImpactSummary))

	types := h.pub.types()
	assert.Equal(t, events.TypeComplete, types[len(types)-2])
	assert.Equal(t, events.TypeImpactSummary, types[len(types)-1])

	summary := h.pub.events[len(h.pub.events)-1].(events.ImpactSummary)
	assert.Equal(t, 8, summary.Processed)
	assert.True(t, summary.OffloadEnabled)
	assert.Equal(t, 200, summary.CumulativeInputTokens)
	assert.InDelta(t, 2.3, core.BytesToGB(uint64(res.SwapDelta)), 1e-6)
}

func TestScheduler_BaselineIsFixed(t *testing.T) {
	// Swap falls below the starting value and then rises; the delta is
	// always measured against the first sample.
	h := newHarness(8, false, 3.0, 2.0, 2.5, 4.9, 5.1)
	res := h.run(t, context.Background())

	require.Equal(t, core.RunCrashed, res.Status)
	assert.InDelta(t, 2.1, core.BytesToGB(uint64(res.Crash.SwapDeltaBytes)), 1e-6)
	// The fourth document tripped the check before it counted as processed.
	assert.Equal(t, 3, res.Processed)
}

func TestScheduler_StopMidDocument(t *testing.T) {
	h := newHarness(12, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.pub.onPublish = func(e events.Event) {
		if d, ok := e.(events.Document); ok && d.Index == 5 {
			cancel()
		}
	}

	res := h.run(t, ctx)
	require.Equal(t, core.RunStopped, res.Status)
	assert.Equal(t, 6, res.Processed)

	// Document 5 finished all of its events before the stop took effect.
	var lastDoc int
	var sawPerformanceAfter bool
	for _, e := range h.pub.events {
		switch ev := e.(type) {
		case events.Document:
			lastDoc = ev.Index
		case events.Performance:
			if lastDoc == 5 {
				sawPerformanceAfter = true
			}
		}
	}
	assert.Equal(t, 5, lastDoc)
	assert.True(t, sawPerformanceAfter)

	statuses := h.pub.statuses()
	assert.Equal(t, "Analysis stopped", statuses[len(statuses)-1])
	assert.Zero(t, h.pub.count(events.TypeComplete))
}

func TestScheduler_Deterministic(t *testing.T) {
	run := func() ([]string, []string) {
		h := newHarness(12, true, 1.0, 1.5, 2.0, 3.5, 4.0)
		h.run(t, context.Background())
		return h.pub.types(), h.pub.statuses()
	}
	typesA, statusA := run()
	typesB, statusB := run()
	assert.Equal(t, typesA, typesB)
	assert.Equal(t, statusA, statusB)
}

func TestScheduler_GenerationFailureDegrades(t *testing.T) {
	h := newHarness(8, false)
	h.gen.fail = map[int]error{0: core.ErrGeneration(core.CodeBackendUnavailable, "ollama unreachable")}
	res := h.run(t, context.Background())

	require.Equal(t, core.RunCompleted, res.Status)
	var errThought *events.Thought
	for _, e := range h.pub.events {
		if th, ok := e.(events.Thought); ok && th.Status == "ERROR" {
			errThought = &th
			break
		}
	}
	require.NotNil(t, errThought)
	assert.Equal(t, "review", errThought.Phase)
	assert.Contains(t, errThought.Text, "ollama unreachable")
	assert.Contains(t, h.pub.statuses(), "Review degraded: continuing without this step")
}

func TestScheduler_FinalPhaseFailureStops(t *testing.T) {
	h := newHarness(8, false)
	h.gen.fail = map[int]error{1: errors.New("connection reset")}
	res := h.run(t, context.Background())

	require.Equal(t, core.RunStopped, res.Status)
	assert.Contains(t, res.Reason, "final phase synthesis failed")
	assert.Zero(t, h.pub.count(events.TypeComplete))
	statuses := h.pub.statuses()
	assert.Equal(t, "Synthesis failed; analysis stopped", statuses[len(statuses)-1])
}

func TestScheduler_TransportClosedStops(t *testing.T) {
	h := newHarness(12, false)
	h.pub.failAt = 10
	res := h.run(t, context.Background())

	require.Equal(t, core.RunStopped, res.Status)
	assert.Equal(t, "event stream closed", res.Reason)
	assert.Equal(t, 10, h.pub.attempts, "no publish attempted after the stream closed")
	assert.Len(t, h.pub.events, 9)
}

func TestScheduler_EmptyCorpusStops(t *testing.T) {
	h := newHarness(8, false)
	h.source = corpus.NewSyntheticSource([]corpus.Slice{{Category: core.CategoryPaper, Count: 0}})
	res := h.run(t, context.Background())

	require.Equal(t, core.RunStopped, res.Status)
	assert.Equal(t, "no documents to analyze", res.Reason)
	assert.Zero(t, res.Processed)
	assert.Empty(t, h.gen.calls)
	assert.Equal(t, []string{events.TypeInit, events.TypeStatus}, h.pub.types())
	assert.Equal(t, []string{"Analysis stopped: no documents to analyze"}, h.pub.statuses())
}

// slowGen holds each stream back for delay before the first chunk, the
// way a cold model load does.
type slowGen struct {
	*scriptGen
	delay time.Duration
}

func (g *slowGen) Generate(ctx context.Context, req generation.Request) (<-chan generation.Chunk, error) {
	inner, err := g.scriptGen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(chan generation.Chunk)
	go func() {
		defer close(out)
		time.Sleep(g.delay)
		for c := range inner {
			out <- c
		}
	}()
	return out, nil
}

func TestScheduler_SlowFirstChunkDrainsBufferedSamples(t *testing.T) {
	h := newHarness(4, false)
	h.cfg.PollInterval = 5 * time.Millisecond
	h.cfg.PollCapacity = 2
	gen := &slowGen{scriptGen: h.gen, delay: 80 * time.Millisecond}

	s, err := New(h.cfg, Deps{
		Sampler:   h.sampler,
		Generator: gen,
		Source:    h.source,
		Publisher: h.pub,
	}, Options{RunID: "run-1", ContentLimitBytes: 256})
	require.NoError(t, err)
	res := s.Run(context.Background())
	require.Equal(t, core.RunCompleted, res.Status)

	// Memory frames published between each generation's Loading status
	// and its first Thought come from one poller drain.
	var drains [][]core.TelemetrySample
	var current []core.TelemetrySample
	collecting := false
	for _, e := range h.pub.events {
		switch ev := e.(type) {
		case events.Status:
			if strings.HasPrefix(ev.Message, "Loading model:") {
				collecting = true
				current = nil
			}
		case events.Memory:
			if collecting {
				current = append(current, ev.Sample)
			}
		case events.Thought:
			if collecting {
				drains = append(drains, current)
				collecting = false
			}
		}
	}
	// One drain per model load: text-a, then text-b.
	require.Len(t, drains, 2)

	for i, drained := range drains {
		assert.Len(t, drained, h.cfg.PollCapacity, "drain %d", i)
		gaps := 0
		for j, sample := range drained {
			if sample.Gap {
				gaps++
			}
			if j > 0 {
				assert.False(t, sample.Timestamp.Before(drained[j-1].Timestamp), "drain %d out of order", i)
			}
		}
		assert.Positive(t, gaps, "drain %d should flag the overflow", i)
	}

	var last time.Time
	for _, e := range h.pub.events {
		if m, ok := e.(events.Memory); ok {
			assert.False(t, m.Sample.Timestamp.Before(last))
			last = m.Sample.Timestamp
		}
	}
}

func TestScheduler_ThoughtsAndMetrics(t *testing.T) {
	h := newHarness(4, false)
	res := h.run(t, context.Background())
	require.Equal(t, core.RunCompleted, res.Status)

	var thoughts []events.Thought
	var metrics []events.Metric
	for _, e := range h.pub.events {
		switch ev := e.(type) {
		case events.Thought:
			thoughts = append(thoughts, ev)
		case events.Metric:
			metrics = append(metrics, ev)
		}
	}
	require.NotEmpty(t, thoughts)
	assert.Equal(t, "Reviewed the batch [TOPIC: Memory Wall]", thoughts[0].Text)
	assert.Equal(t, "PLANNING", thoughts[0].Status)
	assert.Equal(t, "@Reviewer", thoughts[0].Author)
	assert.Equal(t, "Second line [INSIGHT: Offload helps]", thoughts[1].Text)

	// Both phases produce the same tags; each counts once per run.
	require.Len(t, metrics, 2)
	assert.Equal(t, MetricTopics, metrics[0].Name)
	assert.Equal(t, 1, metrics[0].Value)
	assert.Equal(t, map[string]int{MetricTopics: 1, MetricPatterns: 0, MetricInsights: 1, MetricFlags: 0}, res.Findings)
}

func TestScheduler_MemoryAnnotatedWithWorkload(t *testing.T) {
	h := newHarness(8, true)
	h.run(t, context.Background())

	var loaded []string
	for _, e := range h.pub.events {
		if m, ok := e.(events.Memory); ok {
			loaded = append(loaded, m.Sample.LoadedModel)
			if m.Sample.LoadedModel != "" {
				assert.Positive(t, m.Sample.ContextTokens)
				assert.Positive(t, m.Sample.KVCacheBytes)
			}
		}
	}
	assert.Equal(t, "", loaded[0])
	assert.Equal(t, "text-b", loaded[len(loaded)-1])
}

func TestScheduler_PromptCarriesBatchContent(t *testing.T) {
	h := newHarness(4, false)
	h.run(t, context.Background())

	require.NotEmpty(t, h.gen.calls)
	req := h.gen.calls[0]
	assert.Contains(t, req.Prompt, "arxiv_001.txt")
	assert.Contains(t, req.Prompt, "arxiv_004.txt")
	assert.True(t, strings.HasSuffix(req.System, tagInstruction))
}

func TestScheduler_ModelRouting(t *testing.T) {
	cfg := testConfig(4, false)
	cfg.VisionModel = "vision"
	s := &Scheduler{cfg: cfg}
	phase := cfg.Phases[0]

	assert.Equal(t, "text-a", s.modelFor(phase, []core.Document{{Name: "a.txt", Category: core.CategoryPaper}}))
	assert.Equal(t, "vision", s.modelFor(phase, []core.Document{{Name: "chart.png", Category: core.CategoryImage}}))
	assert.Equal(t, "text-a", s.modelFor(phase, []core.Document{{Name: "keynote.txt", Category: core.CategoryVideo}}))
}

func TestNew_RejectsMissingDeps(t *testing.T) {
	_, err := New(testConfig(4, false), Deps{}, Options{})
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}
