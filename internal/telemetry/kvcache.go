package telemetry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
	"github.com/hugo-lorenzo-mato/memwall/internal/generation"
)

// KVCacheEstimator estimates attention cache memory for a context window.
type KVCacheEstimator interface {
	Estimate(model string, contextTokens int) uint64
}

const (
	kvGBPerThousandTokens = 0.015
	kvReferenceWeightsGB  = 5.0
)

// HeuristicKVEstimator scales a fixed per-token cost by model size. It has
// no stated accuracy bound and stands in until a measured value exists.
type HeuristicKVEstimator struct {
	Models map[string]core.ModelSpec
}

// NewHeuristicKVEstimator creates an estimator over a model table.
func NewHeuristicKVEstimator(models map[string]core.ModelSpec) *HeuristicKVEstimator {
	return &HeuristicKVEstimator{Models: models}
}

// Estimate returns the cache size in bytes. Unknown models use the
// reference size.
func (e *HeuristicKVEstimator) Estimate(model string, contextTokens int) uint64 {
	if contextTokens <= 0 {
		return 0
	}
	scale := 1.0
	if spec, ok := e.Models[model]; ok && spec.WeightsGB > 0 {
		scale = spec.WeightsGB / kvReferenceWeightsGB
	}
	gb := float64(contextTokens) / 1000 * kvGBPerThousandTokens * scale
	return core.GBToBytes(gb)
}

// RunningModelLister reports the models an inference server has loaded.
// generation.OllamaClient implements it over /api/ps.
type RunningModelLister interface {
	Running(ctx context.Context) ([]generation.RunningModel, error)
}

const (
	defaultResidentTTL     = 5 * time.Second
	defaultResidentTimeout = 2 * time.Second
)

// ResidentKVEstimator prefers what the server reports for a loaded model:
// resident size beyond the model's weights when both are known, then the
// allocated context length. Anything else goes to the fallback. Server
// answers are cached for a short TTL, failures included, so a down server
// costs at most one short call per TTL.
type ResidentKVEstimator struct {
	lister   RunningModelLister
	models   map[string]core.ModelSpec
	fallback KVCacheEstimator
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time

	mu        sync.Mutex
	resident  []generation.RunningModel
	fetchedAt time.Time
}

// NewResidentKVEstimator creates an estimator over lister. models supplies
// weight footprints; fallback handles models the server does not report.
func NewResidentKVEstimator(lister RunningModelLister, models map[string]core.ModelSpec, fallback KVCacheEstimator) *ResidentKVEstimator {
	if fallback == nil {
		fallback = NewHeuristicKVEstimator(models)
	}
	return &ResidentKVEstimator{
		lister:   lister,
		models:   models,
		fallback: fallback,
		ttl:      defaultResidentTTL,
		timeout:  defaultResidentTimeout,
		now:      time.Now,
	}
}

// Estimate returns the cache size in bytes for model.
func (e *ResidentKVEstimator) Estimate(model string, contextTokens int) uint64 {
	if model == "" {
		return e.fallback.Estimate(model, contextTokens)
	}
	rm, ok := e.lookup(model)
	if !ok {
		return e.fallback.Estimate(model, contextTokens)
	}
	if spec, known := e.models[model]; known && spec.WeightsGB > 0 {
		weights := core.GBToBytes(spec.WeightsGB)
		if rm.SizeBytes > 0 && uint64(rm.SizeBytes) > weights {
			return uint64(rm.SizeBytes) - weights
		}
	}
	if rm.ContextLength > 0 {
		return e.fallback.Estimate(model, rm.ContextLength)
	}
	return e.fallback.Estimate(model, contextTokens)
}

func (e *ResidentKVEstimator) lookup(model string) (generation.RunningModel, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if e.fetchedAt.IsZero() || now.Sub(e.fetchedAt) >= e.ttl {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		resident, err := e.lister.Running(ctx)
		cancel()
		if err != nil {
			resident = nil
		}
		e.resident = resident
		e.fetchedAt = now
	}
	for _, rm := range e.resident {
		if sameModel(rm.Name, model) {
			return rm, true
		}
	}
	return generation.RunningModel{}, false
}

// sameModel treats an untagged name as the ":latest" tag.
func sameModel(a, b string) bool {
	norm := func(s string) string {
		if !strings.Contains(s, ":") {
			return s + ":latest"
		}
		return s
	}
	return norm(a) == norm(b)
}
