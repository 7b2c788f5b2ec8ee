// Package scheduler drives a run: it walks the corpus, enters phases as
// progress crosses their triggers, runs generation at batch boundaries and
// turns every telemetry sample into a Memory event checked for a crash.
//
// A Scheduler is the only producer of a run's events and the only writer
// of its RunState. The background poller is the one concurrent helper and
// talks to the scheduler through its sample buffer alone.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/corpus"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
	"github.com/hugo-lorenzo-mato/memwall/internal/logging"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

// Publisher accepts events in emission order. The events.Multiplexer is
// the production implementation.
type Publisher interface {
	Publish(e events.Event) error
}

// Deps are the collaborators a run needs.
type Deps struct {
	Sampler   telemetry.Sampler
	Generator generation.Generator
	Source    corpus.Source
	Publisher Publisher
	// KV defaults to the heuristic estimator over the scenario's models.
	KV     telemetry.KVCacheEstimator
	Logger *logging.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// CostRates price tokens for the impact summary.
type CostRates struct {
	LocalPerMillion      float64
	CloudPerMillion      float64
	WithoutOffloadFactor float64
}

// Options are per-run settings outside the scenario itself.
type Options struct {
	RunID             string
	ContentLimitBytes int64
	Costs             CostRates
	// Prior token totals from earlier runs, reported as cumulative.
	PriorInputTokens  int
	PriorOutputTokens int
}

// Result is the terminal outcome of a run.
type Result struct {
	RunID         string
	Status        core.RunStatus
	Processed     int
	Total         int
	Crash         *core.CrashRecord
	InputTokens   int
	OutputTokens  int
	PeakMemBytes  uint64
	PeakSwapBytes uint64
	SwapDelta     int64
	Findings      map[string]int
	StartedAt     time.Time
	Elapsed       time.Duration
	// Reason explains a Stopped result.
	Reason string
}

var (
	errCrashed      = errors.New("run crashed")
	errStopped      = errors.New("run stopped")
	errStreamClosed = errors.New("event stream closed")
	errFinalFailed  = errors.New("final phase failed")
	errNoDocuments  = errors.New("no documents to analyze")
)

// Scheduler runs one scenario once.
type Scheduler struct {
	cfg  core.ScenarioConfig
	deps Deps
	opts Options
	log  *logging.Logger

	state    core.RunState
	baseline core.TelemetrySample
	docs     []core.Document
	window   *contextWindow
	findings *findings

	// pendingPhases are phases entered since the last batch boundary.
	pendingPhases []int

	inputTokens   int
	outputTokens  int
	peakMem       uint64
	peakSwap      uint64
	lastSwapDelta int64
	crash         *core.CrashRecord
	reason        string
	started       time.Time
}

// New creates a scheduler. cfg is cloned so later catalog changes cannot
// reach the run.
func New(cfg core.ScenarioConfig, deps Deps, opts Options) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Sampler == nil || deps.Generator == nil || deps.Source == nil || deps.Publisher == nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "scheduler requires sampler, generator, source and publisher")
	}
	cfg = cfg.Clone()
	if deps.KV == nil {
		deps.KV = telemetry.NewHeuristicKVEstimator(cfg.Models)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Logger
	if log == nil {
		log = logging.NewNop()
	}
	return &Scheduler{
		cfg:      cfg,
		deps:     deps,
		opts:     opts,
		log:      log.WithRun(opts.RunID),
		state:    core.NewRunState(cfg.OffloadEnabled),
		window:   newContextWindow(cfg.MaxContextTokens, maxWindowEntries),
		findings: newFindings(),
	}, nil
}

// Run executes the scenario until it completes, crashes or is stopped.
// Cancelling ctx is the stop signal; it is honoured at document and phase
// boundaries and during pacing, never in the middle of an event.
func (s *Scheduler) Run(ctx context.Context) Result {
	start := s.deps.Now()
	s.started = start
	s.state.Status = core.RunRunning

	err := s.run(ctx)

	switch {
	case err == nil:
		s.state.Status = core.RunCompleted
	case errors.Is(err, errCrashed):
		s.state.Status = core.RunCrashed
	case errors.Is(err, errStreamClosed):
		s.state.Status = core.RunStopped
		s.reason = "event stream closed"
	case errors.Is(err, errStopped):
		s.state.Status = core.RunStopped
		s.reason = "stop requested"
		// Best effort; the stream may already be gone.
		_ = s.emit(events.Status{Message: "Analysis stopped"})
	case errors.Is(err, errFinalFailed):
		s.state.Status = core.RunStopped
	case errors.Is(err, errNoDocuments):
		// No phase can be entered, so the run cannot complete.
		s.state.Status = core.RunStopped
		s.reason = err.Error()
		_ = s.emit(events.Status{Message: "Analysis stopped: no documents to analyze"})
	default:
		s.state.Status = core.RunStopped
		s.reason = err.Error()
		_ = s.emit(events.Status{Message: fmt.Sprintf("Analysis aborted: %v", err)})
	}

	res := s.result(start)
	s.log.Info("run finished",
		"status", res.Status,
		"processed", res.Processed,
		"total", res.Total,
		"elapsed", res.Elapsed.Round(time.Millisecond))
	return res
}

func (s *Scheduler) run(ctx context.Context) error {
	docs, err := s.deps.Source.Documents(ctx)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) > s.cfg.TotalDocuments {
		docs = docs[:s.cfg.TotalDocuments]
	}
	s.docs = docs

	// The baseline is fixed here and never resampled.
	s.baseline = s.deps.Sampler.Sample()
	s.state.BaselineSwapBytes = s.baseline.SwapUsedBytes
	s.log.Info("run started",
		"scenario", s.cfg.Scenario,
		"tier", s.cfg.Tier,
		"documents", len(docs),
		"offload", s.cfg.OffloadEnabled,
		"baseline_swap_gb", core.BytesToGB(s.baseline.SwapUsedBytes))

	if err := s.emit(s.initEvent()); err != nil {
		return err
	}
	if len(docs) == 0 {
		return errNoDocuments
	}

	var batch []int
	for i, doc := range docs {
		if ctx.Err() != nil {
			return errStopped
		}
		if err := s.processDocument(i, doc); err != nil {
			return err
		}
		batch = append(batch, i)

		if s.isBatchBoundary(i, len(batch)) {
			if err := s.completeBatch(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			continue
		}
		if err := s.pace(ctx, s.cfg.DocumentPacing); err != nil {
			return err
		}
	}

	return s.finish()
}

func (s *Scheduler) initEvent() events.Init {
	infos := make([]events.DocumentInfo, len(s.docs))
	for i, d := range s.docs {
		infos[i] = events.DocumentInfo{ID: d.ID, Name: d.Name, Category: d.Category, SizeBytes: d.SizeBytes}
	}
	return events.Init{
		RunID:          s.opts.RunID,
		Scenario:       s.cfg.Scenario,
		Tier:           s.cfg.Tier,
		OffloadEnabled: s.cfg.OffloadEnabled,
		Documents:      infos,
	}
}

func (s *Scheduler) processDocument(i int, doc core.Document) error {
	total := len(s.docs)
	if i == 0 || s.docs[i-1].Category != doc.Category {
		if label, ok := s.cfg.CategoryLabels[doc.Category]; ok {
			if err := s.emit(events.Status{Message: label}); err != nil {
				return err
			}
		}
	}

	if err := s.emit(events.Document{
		Name:      doc.Name,
		Index:     i,
		Total:     total,
		Category:  doc.Category,
		SizeBytes: doc.SizeBytes,
	}); err != nil {
		return err
	}
	if err := s.emit(events.DocumentStatus{Index: i, Status: core.DocProcessing}); err != nil {
		return err
	}

	if evicted := s.window.Add(core.EstimateTokens(doc.SizeBytes)); evicted > 0 {
		s.log.Debug("context window pruned",
			"evicted", evicted,
			"resident", s.window.Len(),
			"tokens", s.window.Tokens())
	}

	sample, err := s.observe(s.deps.Sampler.Sample())
	if err != nil {
		return err
	}
	if err := s.emit(pressurePerformance(sample.MemPercent(), s.cfg.OffloadEnabled)); err != nil {
		return err
	}

	s.state.Processed++
	return s.advancePhases()
}

// advancePhases enters every phase whose trigger the current progress has
// reached. The phase index only moves forward.
func (s *Scheduler) advancePhases() error {
	progress := s.state.Progress(len(s.docs))
	for next := s.state.PhaseIndex + 1; next < len(s.cfg.Phases); next++ {
		phase := s.cfg.Phases[next]
		if phase.TriggerPercent > progress {
			break
		}
		s.state.PhaseIndex = next
		s.pendingPhases = append(s.pendingPhases, next)
		s.log.Info("phase entered", "phase", phase.ID, "progress", progress)
		msg := fmt.Sprintf("Phase %d/%d: %s", next+1, len(s.cfg.Phases), phase.Name)
		if phase.Agent != "" {
			msg += " (" + phase.Agent + ")"
		}
		if err := s.emit(events.Status{Message: msg}); err != nil {
			return err
		}
	}
	return nil
}

// isBatchBoundary reports whether document i closes the current batch:
// the batch is full, it is the last document, the next document changes
// category, or the document is media and so batched alone.
func (s *Scheduler) isBatchBoundary(i, batchLen int) bool {
	if i == len(s.docs)-1 || batchLen >= s.cfg.BatchSize || s.docs[i].IsMedia() {
		return true
	}
	return s.docs[i+1].Category != s.docs[i].Category
}

func (s *Scheduler) completeBatch(ctx context.Context, batch []int) error {
	docs := make([]core.Document, len(batch))
	for j, idx := range batch {
		docs[j] = s.docs[idx]
	}

	phases := s.pendingPhases
	s.pendingPhases = nil
	if len(phases) == 0 && s.state.PhaseIndex >= 0 {
		phases = []int{s.state.PhaseIndex}
	}

	if len(phases) > 0 {
		if err := s.emit(events.Status{Message: fmt.Sprintf("Analyzing %s data...", docs[len(docs)-1].Category)}); err != nil {
			return err
		}
	}
	for _, idx := range phases {
		if ctx.Err() != nil {
			return errStopped
		}
		if err := s.generate(ctx, idx, docs); err != nil {
			return err
		}
	}

	for _, idx := range batch {
		if err := s.emit(events.DocumentStatus{Index: idx, Status: core.DocStored}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) finish() error {
	if err := s.emit(events.Status{Message: "Analysis Finalized"}); err != nil {
		return err
	}
	elapsed := s.deps.Now().Sub(s.started)
	if err := s.emit(events.Complete{
		Processed:     s.state.Processed,
		Total:         len(s.docs),
		PeakMemBytes:  s.peakMem,
		PeakSwapBytes: s.peakSwap,
		SwapDelta:     s.lastSwapDelta,
		Findings:      s.findings.Counts(),
		Elapsed:       elapsed,
	}); err != nil {
		return err
	}
	return s.emit(s.impactSummary(elapsed))
}

func (s *Scheduler) impactSummary(elapsed time.Duration) events.ImpactSummary {
	tokens := float64(s.inputTokens + s.outputTokens)
	var saved uint64
	if s.cfg.OffloadEnabled && s.cfg.MemoryTargetBytes > s.baseline.MemTotalBytes {
		saved = s.cfg.MemoryTargetBytes - s.baseline.MemTotalBytes
	}
	without := elapsed
	if s.cfg.OffloadEnabled && s.opts.Costs.WithoutOffloadFactor > 1 {
		without = time.Duration(float64(elapsed) * s.opts.Costs.WithoutOffloadFactor)
	}
	return events.ImpactSummary{
		Processed:               s.state.Processed,
		Total:                   len(s.docs),
		ContextTokens:           s.window.Tokens(),
		MemorySavedBytes:        saved,
		LocalCostUSD:            tokens / 1e6 * s.opts.Costs.LocalPerMillion,
		CloudCostUSD:            tokens / 1e6 * s.opts.Costs.CloudPerMillion,
		Elapsed:                 elapsed,
		EstimatedWithoutOffload: without,
		OffloadEnabled:          s.cfg.OffloadEnabled,
		CumulativeInputTokens:   s.opts.PriorInputTokens + s.inputTokens,
		CumulativeOutputTokens:  s.opts.PriorOutputTokens + s.outputTokens,
	}
}

// emit publishes one event. Any publish failure means the transport is
// gone and the run must end without emitting anything else.
func (s *Scheduler) emit(e events.Event) error {
	if err := s.deps.Publisher.Publish(e); err != nil {
		s.log.Debug("publish failed", "type", e.EventType(), "error", err)
		return errStreamClosed
	}
	return nil
}

func (s *Scheduler) result(start time.Time) Result {
	return Result{
		RunID:         s.opts.RunID,
		Status:        s.state.Status,
		Processed:     s.state.Processed,
		Total:         len(s.docs),
		Crash:         s.crash,
		InputTokens:   s.inputTokens,
		OutputTokens:  s.outputTokens,
		PeakMemBytes:  s.peakMem,
		PeakSwapBytes: s.peakSwap,
		SwapDelta:     s.lastSwapDelta,
		Findings:      s.findings.Counts(),
		StartedAt:     start,
		Elapsed:       s.deps.Now().Sub(start),
		Reason:        s.reason,
	}
}
