package core

import (
	"fmt"
	"time"
)

// StepType labels the kind of reasoning step a phase represents.
type StepType string

const (
	StepPlan        StepType = "plan"
	StepThought     StepType = "thought"
	StepAction      StepType = "action"
	StepObservation StepType = "observation"
)

// Phase is one scripted stage of a scenario. It is entered once overall
// progress reaches TriggerPercent.
type Phase struct {
	ID             string   `mapstructure:"id" yaml:"id" json:"id"`
	Name           string   `mapstructure:"name" yaml:"name" json:"name"`
	TriggerPercent float64  `mapstructure:"trigger_percent" yaml:"trigger_percent" json:"trigger_percent"`
	Model          string   `mapstructure:"model" yaml:"model" json:"model"`
	Agent          string   `mapstructure:"agent" yaml:"agent" json:"agent"`
	StepType       StepType `mapstructure:"step_type" yaml:"step_type" json:"step_type"`
	Tools          []string `mapstructure:"tools" yaml:"tools,omitempty" json:"tools,omitempty"`
	RelatedDocIDs  []string `mapstructure:"related_doc_ids" yaml:"related_doc_ids,omitempty" json:"related_doc_ids,omitempty"`
	SystemPrompt   string   `mapstructure:"system_prompt" yaml:"system_prompt,omitempty" json:"-"`
	Prompt         string   `mapstructure:"prompt" yaml:"prompt,omitempty" json:"-"`
	// Final marks the mandatory synthesis phase. A generation failure here
	// stops the run instead of degrading.
	Final bool `mapstructure:"final" yaml:"final,omitempty" json:"final,omitempty"`
}

// ModelSpec describes a model's resident weight footprint.
type ModelSpec struct {
	Name        string  `mapstructure:"name" yaml:"name" json:"name"`
	WeightsGB   float64 `mapstructure:"weights_gb" yaml:"weights_gb" json:"weights_gb"`
	Description string  `mapstructure:"description" yaml:"description,omitempty" json:"description,omitempty"`
}

// ScenarioConfig fully parameterizes one run. It is built once per run and
// not modified afterwards.
type ScenarioConfig struct {
	Scenario            string
	Tier                string
	Phases              []Phase
	TotalDocuments      int
	MemoryTargetBytes   uint64
	CrashThresholdBytes uint64
	OffloadEnabled      bool
	BatchSize           int
	MaxContextTokens    int

	PollInterval   time.Duration
	PollCapacity   int
	DocumentPacing time.Duration
	SwapHold       time.Duration

	// Models maps model name to its footprint. TextModel and VisionModel
	// route documents by category.
	Models      map[string]ModelSpec
	TextModel   string
	VisionModel string

	// CategoryLabels holds the status shown when the corpus moves into a
	// new document category.
	CategoryLabels map[string]string
}

// Clone returns a deep copy so a run never shares slices or maps with the
// catalog it was built from.
func (c ScenarioConfig) Clone() ScenarioConfig {
	out := c
	out.Phases = make([]Phase, len(c.Phases))
	for i, p := range c.Phases {
		p.Tools = append([]string(nil), p.Tools...)
		p.RelatedDocIDs = append([]string(nil), p.RelatedDocIDs...)
		out.Phases[i] = p
	}
	out.Models = make(map[string]ModelSpec, len(c.Models))
	for k, v := range c.Models {
		out.Models[k] = v
	}
	out.CategoryLabels = make(map[string]string, len(c.CategoryLabels))
	for k, v := range c.CategoryLabels {
		out.CategoryLabels[k] = v
	}
	return out
}

// FinalPhaseIndex returns the phase marked Final, or the last phase.
func (c ScenarioConfig) FinalPhaseIndex() int {
	for i, p := range c.Phases {
		if p.Final {
			return i
		}
	}
	return len(c.Phases) - 1
}

// Validate checks the structural requirements a scheduler relies on.
func (c ScenarioConfig) Validate() error {
	if len(c.Phases) == 0 {
		return ErrValidation(CodeInvalidConfig, "scenario has no phases")
	}
	if c.TotalDocuments <= 0 {
		return ErrValidation(CodeInvalidConfig, "total documents must be positive")
	}
	if c.BatchSize <= 0 {
		return ErrValidation(CodeInvalidConfig, "batch size must be positive")
	}
	prev := -1.0
	for i, p := range c.Phases {
		if p.TriggerPercent < 0 || p.TriggerPercent > 100 {
			return ErrValidation(CodeInvalidConfig,
				fmt.Sprintf("phase %d trigger %.1f outside 0..100", i, p.TriggerPercent))
		}
		if p.TriggerPercent < prev {
			return ErrValidation(CodeInvalidConfig,
				fmt.Sprintf("phase %d trigger %.1f precedes previous trigger %.1f", i, p.TriggerPercent, prev))
		}
		if p.Model == "" {
			return ErrValidation(CodeInvalidConfig, fmt.Sprintf("phase %d has no model", i))
		}
		prev = p.TriggerPercent
	}
	return nil
}

// ModelWeights returns the weight footprint for a model, or zero if unknown.
func (c ScenarioConfig) ModelWeights(model string) uint64 {
	if spec, ok := c.Models[model]; ok {
		return GBToBytes(spec.WeightsGB)
	}
	return 0
}
