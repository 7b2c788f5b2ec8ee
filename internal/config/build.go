package config

import (
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

// Scheduler pacing used when a duration setting does not parse. The
// validator rejects such values, so these only apply to configs built in
// code.
const (
	defaultDocumentPacing = 500 * time.Millisecond
	defaultSwapHold       = time.Second
)

// BuildScenario resolves a catalog entry and tier into the immutable
// configuration for one run. The result shares no slices or maps with def.
func BuildScenario(cfg *Config, def ScenarioDef, tier TierDef, offload bool) (core.ScenarioConfig, error) {
	pacing := Duration(cfg.Scheduler.DocumentPacing, defaultDocumentPacing)
	if tier.DocumentPacing != "" {
		pacing = Duration(tier.DocumentPacing, pacing)
	}

	sc := core.ScenarioConfig{
		Scenario:            def.ID,
		Tier:                tier.Name,
		Phases:              def.Phases,
		TotalDocuments:      tier.TotalDocuments(),
		MemoryTargetBytes:   core.GBToBytes(tier.MemoryTargetGB),
		CrashThresholdBytes: core.GBToBytes(cfg.Scheduler.CrashThresholdGB),
		OffloadEnabled:      offload,
		BatchSize:           cfg.Scheduler.BatchSize,
		MaxContextTokens:    cfg.Scheduler.MaxContextTokens,
		PollInterval:        Duration(cfg.Telemetry.PollInterval, telemetry.DefaultPollInterval),
		PollCapacity:        cfg.Telemetry.PollCapacity,
		DocumentPacing:      pacing,
		SwapHold:            Duration(cfg.Scheduler.SwapHold, defaultSwapHold),
		Models:              cfg.Models.ModelTable(),
		TextModel:           cfg.Models.Text,
		VisionModel:         cfg.Models.Vision,
		CategoryLabels:      def.CategoryLabels,
	}
	sc = sc.Clone()
	if err := sc.Validate(); err != nil {
		return core.ScenarioConfig{}, err
	}
	return sc, nil
}
