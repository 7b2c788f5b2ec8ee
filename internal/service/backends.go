package service

import (
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/corpus"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
	"github.com/hugo-lorenzo-mato/memwall/internal/logging"
	"github.com/hugo-lorenzo-mato/memwall/internal/telemetry"
)

const defaultRequestTimeout = 5 * time.Minute

// SourceFor picks the document source for a tier. A corpus directory on
// the scenario or in the config wins; otherwise documents are synthesized
// from the tier's category mix.
func SourceFor(cfg *config.Config, def config.ScenarioDef, tier config.TierDef) corpus.Source {
	slices := make([]corpus.Slice, 0, len(tier.Mix))
	for _, m := range tier.Mix {
		slices = append(slices, corpus.Slice{
			Category:     m.Category,
			Count:        m.Count,
			AvgSizeBytes: int64(m.AvgSizeKB) * 1024,
		})
	}

	dir := def.CorpusDir
	if dir == "" {
		dir = cfg.Corpus.Dir
	}
	if dir == "" {
		return corpus.NewSyntheticSource(slices)
	}
	return corpus.NewDirSource(corpus.ResolveDir(dir, def.ID, tier.Name), slices)
}

// GeneratorFor returns the Ollama client when enabled, else the scripted
// generator.
func GeneratorFor(cfg *config.Config, logger *logging.Logger) generation.Generator {
	if !cfg.Ollama.Enabled {
		return generation.NewScriptedGenerator(config.Duration(cfg.Ollama.ScriptedLoadDelay, 0))
	}
	opts := generation.Options{
		NumPredict:    cfg.Ollama.NumPredict,
		Temperature:   cfg.Ollama.Temperature,
		TopP:          cfg.Ollama.TopP,
		RepeatPenalty: cfg.Ollama.RepeatPenalty,
	}
	timeout := config.Duration(cfg.Ollama.RequestTimeout, defaultRequestTimeout)
	return generation.NewOllamaClient(cfg.Ollama.URL, timeout, opts, logger)
}

// KVEstimatorFor asks a live Ollama server what it has resident and falls
// back to the heuristic. Scripted runs, or generators that cannot report
// resident models, use the heuristic alone.
func KVEstimatorFor(cfg *config.Config, gen generation.Generator, models map[string]core.ModelSpec) telemetry.KVCacheEstimator {
	heuristic := telemetry.NewHeuristicKVEstimator(models)
	if !cfg.Ollama.Enabled {
		return heuristic
	}
	lister, ok := gen.(telemetry.RunningModelLister)
	if !ok {
		return heuristic
	}
	return telemetry.NewResidentKVEstimator(lister, models, heuristic)
}
