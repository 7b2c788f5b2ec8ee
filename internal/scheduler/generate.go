package scheduler

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/events"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

// generate runs one phase's generation over a batch, swapping models first
// when needed. Generation failures degrade to an error Thought unless the
// phase is the final one.
func (s *Scheduler) generate(ctx context.Context, phaseIdx int, batch []core.Document) error {
	phase := s.cfg.Phases[phaseIdx]
	model := s.modelFor(phase, batch)
	log := s.log.WithPhase(phase.ID).WithModel(model)

	if model != s.state.LoadedModel {
		if s.state.LoadedModel != "" {
			if err := s.emit(events.Status{Message: fmt.Sprintf("Offloading model: %s...", s.state.LoadedModel)}); err != nil {
				return err
			}
		}
		if err := s.pace(ctx, s.cfg.SwapHold); err != nil {
			return err
		}
		if err := s.emit(events.Status{Message: fmt.Sprintf("Loading model: %s...", model)}); err != nil {
			return err
		}
	}

	req := s.buildRequest(ctx, phase, model, batch)

	poller := telemetry.StartPoller(s.deps.Sampler, s.pollInterval(), s.cfg.PollCapacity)
	defer poller.Stop()

	// The stop signal never aborts a generation in flight.
	genCtx := context.WithoutCancel(ctx)
	start := s.deps.Now()
	stream, err := s.deps.Generator.Generate(genCtx, req)
	if err != nil {
		poller.Stop()
		if err := s.observeAll(poller.Drain()); err != nil {
			return err
		}
		return s.generationFailed(phaseIdx, err)
	}

	consumed := false
	defer func() {
		if !consumed {
			go func() {
				for range stream {
				}
			}()
		}
	}()

	out := &thoughtWriter{s: s, phase: phase, related: relatedIDs(phase, batch)}
	var ttft time.Duration
	first := true
	for chunk := range stream {
		if first {
			first = false
			ttft = s.deps.Now().Sub(start)
			poller.Stop()
			s.state.LoadedModel = model
			buffered := poller.Drain()
			log.Debug("first chunk", "ttft", ttft, "buffered_samples", len(buffered), "dropped", poller.Dropped())
			if err := s.observeAll(buffered); err != nil {
				return err
			}
		}

		switch {
		case chunk.Err != nil:
			if err := out.Flush(); err != nil {
				return err
			}
			return s.generationFailed(phaseIdx, chunk.Err)
		case chunk.Done:
			consumed = true
			if err := out.Flush(); err != nil {
				return err
			}
			s.inputTokens += chunk.InputTokens
			s.outputTokens += chunk.OutputTokens
			log.Info("generation complete",
				"input_tokens", chunk.InputTokens,
				"output_tokens", chunk.OutputTokens,
				"ttft", ttft)
			return s.emit(measuredPerformance(ttft, s.deps.Now().Sub(start), chunk.OutputTokens))
		default:
			if err := out.Write(chunk.Text); err != nil {
				return err
			}
		}
	}
	consumed = true

	if first {
		poller.Stop()
		if err := s.observeAll(poller.Drain()); err != nil {
			return err
		}
	}
	if err := out.Flush(); err != nil {
		return err
	}
	return s.generationFailed(phaseIdx, core.ErrGeneration(core.CodeStreamIncomplete, "generation stream closed before completion"))
}

func (s *Scheduler) generationFailed(phaseIdx int, cause error) error {
	phase := s.cfg.Phases[phaseIdx]
	s.log.WithPhase(phase.ID).Warn("generation failed", "error", cause)

	if err := s.emit(events.Thought{
		Text:          fmt.Sprintf("[Analysis Error: %v]", cause),
		Author:        phase.Agent,
		Status:        "ERROR",
		StepType:      phase.StepType,
		Phase:         phase.ID,
		RelatedDocIDs: phase.RelatedDocIDs,
	}); err != nil {
		return err
	}

	if phaseIdx == s.cfg.FinalPhaseIndex() {
		s.reason = fmt.Sprintf("final phase %s failed: %v", phase.ID, cause)
		if err := s.emit(events.Status{Message: fmt.Sprintf("%s failed; analysis stopped", phase.Name)}); err != nil {
			return err
		}
		return errFinalFailed
	}
	return s.emit(events.Status{Message: fmt.Sprintf("%s degraded: continuing without this step", phase.Name)})
}

// modelFor routes media batches to the vision model. Video transcripts
// stay on the phase model.
func (s *Scheduler) modelFor(phase core.Phase, batch []core.Document) string {
	if s.cfg.VisionModel == "" {
		return phase.Model
	}
	for _, d := range batch {
		if d.IsMedia() && !strings.HasSuffix(strings.ToLower(d.Name), ".txt") {
			return s.cfg.VisionModel
		}
	}
	return phase.Model
}

func (s *Scheduler) buildRequest(ctx context.Context, phase core.Phase, model string, batch []core.Document) generation.Request {
	var images []string
	var b strings.Builder
	b.WriteString("CONTEXT DATA:\n")
	for _, d := range batch {
		content, err := s.deps.Source.Load(ctx, d, s.opts.ContentLimitBytes)
		if err != nil {
			s.log.Warn("document content unavailable", "document", d.Name, "error", err)
			content = []byte("[content unavailable]")
		}
		fmt.Fprintf(&b, "\n--- %s (%s) ---\n", d.Name, d.Category)
		if d.Category == core.CategoryImage && model == s.cfg.VisionModel {
			images = append(images, base64.StdEncoding.EncodeToString(content))
			b.WriteString("[image attached]\n")
			continue
		}
		b.Write(content)
		b.WriteString("\n")
	}
	b.WriteString("\nTASK:\n")
	b.WriteString(phase.Prompt)
	b.WriteString(tagReminder)

	return generation.Request{
		Model:  model,
		System: phase.SystemPrompt + tagInstruction,
		Prompt: b.String(),
		Images: images,
	}
}

func relatedIDs(phase core.Phase, batch []core.Document) []string {
	if len(phase.RelatedDocIDs) > 0 {
		return phase.RelatedDocIDs
	}
	ids := make([]string, len(batch))
	for i, d := range batch {
		ids[i] = d.ID
	}
	return ids
}

const tagInstruction = `

Tag findings inside your sentences using:
- [TOPIC: <entity>] for companies, products or technologies.
- [PATTERN: <description>] for recurring trends or design shifts.
- [INSIGHT: <description>] for actionable conclusions.
- [FLAG: <issue>] for critical risks or bottlenecks.`

const tagReminder = "\n\nREMINDER: use tags like [TOPIC: x], [PATTERN: x], [INSIGHT: x] in your output."

// thoughtWriter turns streamed text into one Thought per completed line,
// each followed by the Metric events its tags produce.
type thoughtWriter struct {
	s       *Scheduler
	phase   core.Phase
	related []string
	buf     strings.Builder
}

func (w *thoughtWriter) Write(text string) error {
	w.buf.WriteString(text)
	pending := w.buf.String()
	idx := strings.LastIndexByte(pending, '\n')
	if idx < 0 {
		return nil
	}
	w.buf.Reset()
	w.buf.WriteString(pending[idx+1:])
	for _, line := range strings.Split(pending[:idx], "\n") {
		if err := w.emitLine(line); err != nil {
			return err
		}
	}
	return nil
}

func (w *thoughtWriter) Flush() error {
	rest := w.buf.String()
	w.buf.Reset()
	return w.emitLine(rest)
}

func (w *thoughtWriter) emitLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if err := w.s.emit(events.Thought{
		Text:          line,
		Author:        w.phase.Agent,
		Status:        statusBadge(w.phase.StepType),
		StepType:      w.phase.StepType,
		Phase:         w.phase.ID,
		RelatedDocIDs: w.related,
	}); err != nil {
		return err
	}
	for _, m := range w.s.findings.Extract(line) {
		if err := w.s.emit(m); err != nil {
			return err
		}
	}
	return nil
}

func statusBadge(step core.StepType) string {
	switch step {
	case core.StepPlan:
		return "PLANNING"
	case core.StepAction:
		return "EXECUTING"
	case core.StepObservation:
		return "OBSERVING"
	default:
		return "ANALYZING"
	}
}
