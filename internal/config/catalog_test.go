package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/memwall/internal/core"
)

func TestBuiltinCatalog_Tiers(t *testing.T) {
	c := BuiltinCatalog()
	assert.Equal(t, []string{"ces2026", "pmm"}, c.IDs())

	tests := []struct {
		scenario, tier string
		docs           int
		targetGB       float64
	}{
		{"pmm", "lite", 18, 10},
		{"pmm", "large", 268, 19},
		{"ces2026", "standard", 21, 14},
	}
	for _, tt := range tests {
		t.Run(tt.scenario+"_"+tt.tier, func(t *testing.T) {
			_, tier, err := c.Resolve(tt.scenario, tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.docs, tier.TotalDocuments())
			assert.Equal(t, tt.targetGB, tier.MemoryTargetGB)
		})
	}
}

func TestBuiltinCatalog_PhasesValidate(t *testing.T) {
	cfg := validConfig(t)
	c := BuiltinCatalog()
	for _, def := range c.List() {
		for _, tier := range def.Tiers {
			sc, err := BuildScenario(cfg, def, tier, false)
			require.NoError(t, err, "%s/%s", def.ID, tier.Name)
			assert.Len(t, sc.Phases, 5)
			assert.True(t, sc.Phases[sc.FinalPhaseIndex()].Final)
		}
	}
}

func TestCatalog_ResolveCombinedID(t *testing.T) {
	def, tier, err := BuiltinCatalog().Resolve("pmm_large", "")
	require.NoError(t, err)
	assert.Equal(t, "pmm", def.ID)
	assert.Equal(t, "large", tier.Name)
}

func TestCatalog_ResolveDefaultTier(t *testing.T) {
	_, tier, err := BuiltinCatalog().Resolve("ces2026", "")
	require.NoError(t, err)
	assert.Equal(t, "standard", tier.Name)
}

func TestCatalog_LookupSuggestsClosest(t *testing.T) {
	_, err := BuiltinCatalog().Lookup("ces")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
	assert.Contains(t, err.Error(), `did you mean "ces2026"`)
}

func TestCatalog_UnknownTier(t *testing.T) {
	_, _, err := BuiltinCatalog().Resolve("pmm", "huge")
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatNotFound))
}

func TestLoadScenarioFile_MergesOverBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	content := `
scenarios:
  - id: PMM
    name: Override
    phases:
      - id: only
        name: Only phase
        trigger_percent: 50
        model: llama3.1:8b
        agent: "@Solo"
        step_type: thought
        final: true
    tiers:
      - name: tiny
        memory_target_gb: 2
        mix:
          - category: paper
            count: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	defs, err := LoadScenarioFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "pmm", defs[0].ID)

	merged := BuiltinCatalog().Merge(defs...)
	def, tier, err := merged.Resolve("pmm", "tiny")
	require.NoError(t, err)
	assert.Equal(t, "Override", def.Name)
	assert.Equal(t, 2, tier.TotalDocuments())
	assert.Equal(t, core.StepThought, def.Phases[0].StepType)

	// The built-in catalog is untouched.
	orig, err := BuiltinCatalog().Lookup("pmm")
	require.NoError(t, err)
	assert.Len(t, orig.Phases, 5)
}

func TestLoadScenarioFile_MissingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  - name: nameless\n"), 0o600))
	_, err := LoadScenarioFile(path)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}

func TestBuildScenario(t *testing.T) {
	cfg := validConfig(t)
	def, tier, err := BuiltinCatalog().Resolve("pmm", "large")
	require.NoError(t, err)

	sc, err := BuildScenario(cfg, def, tier, true)
	require.NoError(t, err)

	assert.Equal(t, 268, sc.TotalDocuments)
	assert.True(t, sc.OffloadEnabled)
	assert.Equal(t, core.GBToBytes(2.0), sc.CrashThresholdBytes)
	assert.Equal(t, core.GBToBytes(19), sc.MemoryTargetBytes)
	assert.Equal(t, "150ms", sc.DocumentPacing.String())
	assert.Equal(t, "llava:13b", sc.VisionModel)
	assert.Equal(t, core.GBToBytes(9.0), sc.ModelWeights("qwen2.5:14b"))

	// Runs never share phase slices with the catalog.
	sc.Phases[0].Tools[0] = "mutated"
	assert.Equal(t, "document_loader", def.Phases[0].Tools[0])
}

func TestBuildScenario_RejectsInvalid(t *testing.T) {
	cfg := validConfig(t)
	_, err := BuildScenario(cfg, ScenarioDef{ID: "empty"}, TierDef{Name: "x"}, false)
	require.Error(t, err)
	assert.True(t, core.IsCategory(err, core.ErrCatValidation))
}
