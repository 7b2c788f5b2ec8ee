// Package service wires configuration, telemetry, generation and the
// event stream into runs. It is shared by the HTTP server and the CLI.
package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/corpus"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
	"github.com/hugo-lorenzo-mato/memwall/internal/logging"
	"github.com/hugo-lorenzo-mato/memwall/internal/scheduler"
	"github.com/hugo-lorenzo-mato/memwall/internal/session"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

// DefaultDrainTimeout bounds how long a finished run waits for its display
// to accept the remaining queued events.
const DefaultDrainTimeout = 10 * time.Second

// SnapshotSource provides the configuration a new run starts from.
type SnapshotSource interface {
	Current() *config.Snapshot
}

// Deps are the long-lived collaborators shared by all runs.
type Deps struct {
	Configs  SnapshotSource
	Sampler  telemetry.Sampler
	Sessions session.Store
	// Bus mirrors every run's frames to passive observers. Optional.
	Bus    *events.Bus
	Logger *logging.Logger

	// Overrides for tests.
	NewGenerator func(cfg *config.Config) generation.Generator
	NewSource    func(cfg *config.Config, def config.ScenarioDef, tier config.TierDef) corpus.Source
	NewID        func() string
	DrainTimeout time.Duration
}

// Plan is a resolved request, ready to execute.
type Plan struct {
	ID       string
	Config   *config.Config
	Def      config.ScenarioDef
	Tier     config.TierDef
	Scenario core.ScenarioConfig
}

// RunInfo describes a run in progress.
type RunInfo struct {
	ID             string    `json:"id"`
	Scenario       string    `json:"scenario"`
	Tier           string    `json:"tier"`
	OffloadEnabled bool      `json:"offload_enabled"`
	StartedAt      time.Time `json:"started_at"`
}

type activeRun struct {
	info   RunInfo
	cancel context.CancelFunc
}

// Launcher starts and tracks runs.
type Launcher struct {
	deps   Deps
	logger *logging.Logger

	mu     sync.Mutex
	active map[string]*activeRun
	wg     sync.WaitGroup
}

// NewLauncher creates a launcher. Configs and Sampler are required.
func NewLauncher(deps Deps) (*Launcher, error) {
	if deps.Configs == nil || deps.Sampler == nil {
		return nil, core.ErrValidation(core.CodeInvalidConfig, "launcher requires a config source and a sampler")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewMemoryStore()
	}
	if deps.NewGenerator == nil {
		logger := deps.Logger
		deps.NewGenerator = func(cfg *config.Config) generation.Generator { return GeneratorFor(cfg, logger) }
	}
	if deps.NewSource == nil {
		deps.NewSource = SourceFor
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.DrainTimeout <= 0 {
		deps.DrainTimeout = DefaultDrainTimeout
	}
	return &Launcher{deps: deps, logger: deps.Logger, active: make(map[string]*activeRun)}, nil
}

// Plan resolves a request against the current configuration snapshot.
func (l *Launcher) Plan(req Request) (*Plan, error) {
	snap := l.deps.Configs.Current()
	def, tier, err := snap.Catalog.Resolve(req.Scenario, req.Tier)
	if err != nil {
		return nil, err
	}
	offload := snap.Config.Scheduler.OffloadByDefault
	if req.OffloadEnabled != nil {
		offload = *req.OffloadEnabled
	}
	sc, err := config.BuildScenario(snap.Config, def, tier, offload)
	if err != nil {
		return nil, fmt.Errorf("building scenario %s/%s: %w", def.ID, tier.Name, err)
	}
	return &Plan{ID: l.deps.NewID(), Config: snap.Config, Def: def, Tier: tier, Scenario: sc}, nil
}

// Run plans and executes a request, streaming to display.
func (l *Launcher) Run(ctx context.Context, req Request, display events.Transport) (scheduler.Result, error) {
	plan, err := l.Plan(req)
	if err != nil {
		return scheduler.Result{}, err
	}
	return l.Execute(ctx, plan, display)
}

// Execute runs a plan to its end. Cancelling ctx stops the run; the
// display still receives every event emitted before the stop.
func (l *Launcher) Execute(ctx context.Context, plan *Plan, display events.Transport) (scheduler.Result, error) {
	cfg := plan.Config
	log := l.logger.WithRun(plan.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.track(plan, cancel)
	defer l.untrack(plan.ID)

	prior, err := l.deps.Sessions.Totals(ctx)
	if err != nil {
		log.Warn("loading token totals", "error", err)
	}

	transport := display
	var recorder *events.Recorder
	if cfg.Server.RecordDir != "" {
		recorder = events.NewRecorder(filepath.Join(cfg.Server.RecordDir, plan.ID+".jsonl"))
		transport = events.Fanout(transport, recorder)
	}
	if l.deps.Bus != nil {
		transport = l.deps.Bus.Tap(plan.ID, transport)
	}

	mux := events.NewMultiplexer(cfg.Scheduler.QueueSize)
	gen := l.deps.NewGenerator(cfg)
	sched, err := scheduler.New(plan.Scenario, scheduler.Deps{
		Sampler:   l.deps.Sampler,
		Generator: gen,
		Source:    l.deps.NewSource(cfg, plan.Def, plan.Tier),
		Publisher: mux,
		KV:        KVEstimatorFor(cfg, gen, plan.Scenario.Models),
		Logger:    l.logger,
	}, scheduler.Options{
		RunID:             plan.ID,
		ContentLimitBytes: cfg.Scheduler.ContentLimitBytes,
		Costs: scheduler.CostRates{
			LocalPerMillion:      cfg.Costs.LocalPerMillionTokens,
			CloudPerMillion:      cfg.Costs.CloudPerMillionTokens,
			WithoutOffloadFactor: cfg.Costs.WithoutOffloadFactor,
		},
		PriorInputTokens:  prior.InputTokens,
		PriorOutputTokens: prior.OutputTokens,
	})
	if err != nil {
		return scheduler.Result{}, err
	}

	// The stream outlives the stop signal so queued events still reach
	// the display.
	muxCtx, stopMux := context.WithCancel(context.WithoutCancel(ctx))
	defer stopMux()
	var g errgroup.Group
	g.Go(func() error { return mux.Run(muxCtx, transport) })

	res := sched.Run(runCtx)

	mux.Close()
	timer := time.NewTimer(l.deps.DrainTimeout)
	select {
	case <-mux.Done():
	case <-timer.C:
		log.Warn("display did not drain in time", "timeout", l.deps.DrainTimeout)
		stopMux()
	}
	timer.Stop()
	if err := g.Wait(); err != nil {
		log.Debug("event stream ended", "error", err)
	}

	if recorder != nil {
		if err := recorder.Close(); err != nil {
			log.Warn("writing transcript", "error", err)
		}
	}
	if err := l.deps.Sessions.SaveRun(context.WithoutCancel(ctx), recordFor(plan, res)); err != nil {
		log.Warn("saving run", "error", err)
	}
	return res, nil
}

// Start executes a plan in the background with no display client.
// Observers follow it through the bus.
func (l *Launcher) Start(req Request) (*Plan, error) {
	plan, err := l.Plan(req)
	if err != nil {
		return nil, err
	}
	discard := events.TransportFunc(func(context.Context, events.Frame) error { return nil })

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if _, err := l.Execute(context.Background(), plan, discard); err != nil {
			l.logger.WithRun(plan.ID).Error("detached run failed", "error", err)
		}
	}()
	return plan, nil
}

// Stop signals a run to stop. It reports whether the run was active.
func (l *Launcher) Stop(id string) bool {
	l.mu.Lock()
	run, ok := l.active[id]
	l.mu.Unlock()
	if ok {
		run.cancel()
	}
	return ok
}

// StopAll signals every active run and waits for detached runs.
func (l *Launcher) StopAll() {
	l.mu.Lock()
	for _, run := range l.active {
		run.cancel()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// Active lists runs in progress, oldest first.
func (l *Launcher) Active() []RunInfo {
	l.mu.Lock()
	out := make([]RunInfo, 0, len(l.active))
	for _, run := range l.active {
		out = append(out, run.info)
	}
	l.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Sessions exposes the run history store.
func (l *Launcher) Sessions() session.Store {
	return l.deps.Sessions
}

func (l *Launcher) track(plan *Plan, cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active[plan.ID] = &activeRun{
		info: RunInfo{
			ID:             plan.ID,
			Scenario:       plan.Scenario.Scenario,
			Tier:           plan.Scenario.Tier,
			OffloadEnabled: plan.Scenario.OffloadEnabled,
			StartedAt:      time.Now(),
		},
		cancel: cancel,
	}
}

func (l *Launcher) untrack(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, id)
}

func recordFor(plan *Plan, res scheduler.Result) session.RunRecord {
	return session.RunRecord{
		ID:             plan.ID,
		Scenario:       plan.Scenario.Scenario,
		Tier:           plan.Scenario.Tier,
		OffloadEnabled: plan.Scenario.OffloadEnabled,
		Status:         res.Status,
		Processed:      res.Processed,
		Total:          res.Total,
		InputTokens:    res.InputTokens,
		OutputTokens:   res.OutputTokens,
		PeakMemBytes:   res.PeakMemBytes,
		PeakSwapBytes:  res.PeakSwapBytes,
		SwapDeltaBytes: res.SwapDelta,
		Findings:       res.Findings,
		Reason:         res.Reason,
		StartedAt:      res.StartedAt,
		Elapsed:        res.Elapsed,
	}
}
