package scheduler

import (
	"context"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/crash"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
)

// observe annotates a raw sample with the current workload, emits it and
// runs the crash check. It returns errCrashed after emitting the one Crash
// event of the run.
func (s *Scheduler) observe(raw core.TelemetrySample) (core.TelemetrySample, error) {
	model := s.state.LoadedModel
	tokens := s.window.Tokens()
	sample := raw.WithWorkload(model, tokens, s.deps.KV.Estimate(model, tokens))

	s.peakMem = max(s.peakMem, sample.MemUsedBytes)
	s.peakSwap = max(s.peakSwap, sample.SwapUsedBytes)
	s.lastSwapDelta = crash.SwapDelta(sample, s.baseline)

	if err := s.emit(events.Memory{Sample: sample}); err != nil {
		return sample, err
	}

	if !crash.Evaluate(sample, s.baseline, s.cfg.CrashThresholdBytes, s.cfg.OffloadEnabled) {
		return sample, nil
	}

	record := crash.NewRecord(sample, s.baseline, s.state.Processed, len(s.docs))
	s.crash = &record
	s.log.Warn("crash condition reached",
		"swap_delta_gb", core.BytesToGB(uint64(max(record.SwapDeltaBytes, 0))),
		"processed", record.Processed)
	if err := s.emit(events.Crash{Record: record}); err != nil {
		return sample, err
	}
	return sample, errCrashed
}

// observeAll forwards drained poller samples in the order they were taken.
func (s *Scheduler) observeAll(samples []core.TelemetrySample) error {
	for _, raw := range samples {
		if _, err := s.observe(raw); err != nil {
			return err
		}
	}
	return nil
}

// pace waits d while sampling at the poll interval so the display keeps
// moving between scripted events.
func (s *Scheduler) pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errStopped
		case <-deadline.C:
			return nil
		case <-ticker.C:
			if _, err := s.observe(s.deps.Sampler.Sample()); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) pollInterval() time.Duration {
	if s.cfg.PollInterval > 0 {
		return s.cfg.PollInterval
	}
	return 200 * time.Millisecond
}
