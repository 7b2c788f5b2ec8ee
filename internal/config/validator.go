package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateServer(&cfg.Server)
	v.validateOllama(&cfg.Ollama)
	v.validateTelemetry(&cfg.Telemetry)
	v.validateScheduler(&cfg.Scheduler)
	v.validateSession(&cfg.Session)
	v.validateCosts(&cfg.Costs)
	v.validateModels(&cfg.Models)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateDuration(field, value string, allowZero bool) {
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration")
		return
	}
	if d < 0 || (!allowZero && d == 0) {
		v.addError(field, value, "must be positive")
	}
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"auto": true, "text": true, "json": true,
	}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateServer(cfg *ServerConfig) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		v.addError("server.port", cfg.Port, "must be between 1 and 65535")
	}
	v.validateDuration("server.read_timeout", cfg.ReadTimeout, false)
	v.validateDuration("server.idle_timeout", cfg.IdleTimeout, false)
	v.validateDuration("server.shutdown_timeout", cfg.ShutdownTimeout, false)
}

func (v *Validator) validateOllama(cfg *OllamaConfig) {
	if cfg.Enabled {
		u, err := url.Parse(cfg.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			v.addError("ollama.url", cfg.URL, "must be an absolute URL")
		}
	}
	v.validateDuration("ollama.request_timeout", cfg.RequestTimeout, false)
	v.validateDuration("ollama.load_timeout", cfg.LoadTimeout, false)
	v.validateDuration("ollama.scripted_load_delay", cfg.ScriptedLoadDelay, true)
	if cfg.NumPredict <= 0 {
		v.addError("ollama.num_predict", cfg.NumPredict, "must be positive")
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		v.addError("ollama.temperature", cfg.Temperature, "must be between 0 and 2")
	}
	if cfg.TopP < 0 || cfg.TopP > 1 {
		v.addError("ollama.top_p", cfg.TopP, "must be between 0 and 1")
	}
}

func (v *Validator) validateTelemetry(cfg *TelemetryConfig) {
	v.validateDuration("telemetry.poll_interval", cfg.PollInterval, false)
	if cfg.PollCapacity < 1 {
		v.addError("telemetry.poll_capacity", cfg.PollCapacity, "must be at least 1")
	}
}

func (v *Validator) validateScheduler(cfg *SchedulerConfig) {
	if cfg.BatchSize < 1 {
		v.addError("scheduler.batch_size", cfg.BatchSize, "must be at least 1")
	}
	if cfg.CrashThresholdGB <= 0 {
		v.addError("scheduler.crash_threshold_gb", cfg.CrashThresholdGB, "must be positive")
	}
	v.validateDuration("scheduler.document_pacing", cfg.DocumentPacing, true)
	v.validateDuration("scheduler.swap_hold", cfg.SwapHold, true)
	if cfg.MaxContextTokens < 1 {
		v.addError("scheduler.max_context_tokens", cfg.MaxContextTokens, "must be at least 1")
	}
	if cfg.QueueSize < 1 {
		v.addError("scheduler.queue_size", cfg.QueueSize, "must be at least 1")
	}
	if cfg.ContentLimitBytes < 0 {
		v.addError("scheduler.content_limit_bytes", cfg.ContentLimitBytes, "must be non-negative")
	}
}

func (v *Validator) validateSession(cfg *SessionConfig) {
	if cfg.Enabled && strings.TrimSpace(cfg.Path) == "" {
		v.addError("session.path", cfg.Path, "required when session is enabled")
	}
}

func (v *Validator) validateCosts(cfg *CostsConfig) {
	if cfg.LocalPerMillionTokens < 0 {
		v.addError("costs.local_per_million_tokens", cfg.LocalPerMillionTokens, "must be non-negative")
	}
	if cfg.CloudPerMillionTokens < 0 {
		v.addError("costs.cloud_per_million_tokens", cfg.CloudPerMillionTokens, "must be non-negative")
	}
	if cfg.WithoutOffloadFactor < 1 {
		v.addError("costs.without_offload_factor", cfg.WithoutOffloadFactor, "must be at least 1")
	}
}

func (v *Validator) validateModels(cfg *ModelsConfig) {
	table := cfg.ModelTable()
	if len(table) != len(cfg.Catalog) {
		v.addError("models.catalog", len(cfg.Catalog), "model names must be unique")
	}
	for i, spec := range cfg.Catalog {
		if spec.Name == "" {
			v.addError(fmt.Sprintf("models.catalog[%d].name", i), spec.Name, "required")
		}
		if spec.WeightsGB <= 0 {
			v.addError(fmt.Sprintf("models.catalog[%d].weights_gb", i), spec.WeightsGB, "must be positive")
		}
	}
	if _, ok := table[cfg.Text]; !ok {
		v.addError("models.text", cfg.Text, "must name a model in models.catalog")
	}
	if _, ok := table[cfg.Vision]; !ok {
		v.addError("models.vision", cfg.Vision, "must name a model in models.catalog")
	}
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}

// Duration parses a duration that already passed validation, falling back
// to def for malformed input.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
