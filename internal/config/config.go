package config

import "github.com/hugo-lorenzo-mato/memwall/internal/core"

// Config holds all application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Ollama    OllamaConfig    `mapstructure:"ollama"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Session   SessionConfig   `mapstructure:"session"`
	Costs     CostsConfig     `mapstructure:"costs"`
	Models    ModelsConfig    `mapstructure:"models"`
	Scenarios ScenariosConfig `mapstructure:"scenarios"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig configures the HTTP and websocket server.
type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	ReadTimeout     string   `mapstructure:"read_timeout"`
	IdleTimeout     string   `mapstructure:"idle_timeout"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
	RecordDir       string   `mapstructure:"record_dir"`
}

// OllamaConfig configures the generation backend. When disabled, a
// scripted generator with canned output is used instead.
type OllamaConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	URL            string  `mapstructure:"url"`
	RequestTimeout string  `mapstructure:"request_timeout"`
	LoadTimeout    string  `mapstructure:"load_timeout"`
	NumPredict     int     `mapstructure:"num_predict"`
	Temperature    float64 `mapstructure:"temperature"`
	TopP           float64 `mapstructure:"top_p"`
	RepeatPenalty  float64 `mapstructure:"repeat_penalty"`

	// ScriptedLoadDelay simulates model load latency for the scripted
	// generator.
	ScriptedLoadDelay string `mapstructure:"scripted_load_delay"`
}

// TelemetryConfig configures memory sampling.
type TelemetryConfig struct {
	PollInterval string `mapstructure:"poll_interval"`
	PollCapacity int    `mapstructure:"poll_capacity"`
}

// SchedulerConfig configures run pacing and crash logic.
type SchedulerConfig struct {
	BatchSize         int     `mapstructure:"batch_size"`
	CrashThresholdGB  float64 `mapstructure:"crash_threshold_gb"`
	DocumentPacing    string  `mapstructure:"document_pacing"`
	SwapHold          string  `mapstructure:"swap_hold"`
	MaxContextTokens  int     `mapstructure:"max_context_tokens"`
	QueueSize         int     `mapstructure:"queue_size"`
	ContentLimitBytes int64   `mapstructure:"content_limit_bytes"`
	OffloadByDefault  bool    `mapstructure:"offload_by_default"`
}

// CorpusConfig selects where documents come from. An empty dir uses a
// synthetic corpus generated from the tier's category mix.
type CorpusConfig struct {
	Dir string `mapstructure:"dir"`
}

// SessionConfig configures run history persistence.
type SessionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// CostsConfig holds per-million-token rates for the impact summary.
type CostsConfig struct {
	LocalPerMillionTokens float64 `mapstructure:"local_per_million_tokens"`
	CloudPerMillionTokens float64 `mapstructure:"cloud_per_million_tokens"`

	// WithoutOffloadFactor scales elapsed time to estimate a run on a host
	// that had to page model weights without offload.
	WithoutOffloadFactor float64 `mapstructure:"without_offload_factor"`
}

// ModelsConfig is the single model table shared by the scheduler and the
// KV cache estimator.
type ModelsConfig struct {
	Text    string           `mapstructure:"text"`
	Vision  string           `mapstructure:"vision"`
	Catalog []core.ModelSpec `mapstructure:"catalog"`
}

// ScenariosConfig points at an optional YAML file that adds to or
// overrides the built-in scenario catalog.
type ScenariosConfig struct {
	File string `mapstructure:"file"`
}

// ModelTable indexes the model catalog by name.
func (m ModelsConfig) ModelTable() map[string]core.ModelSpec {
	table := make(map[string]core.ModelSpec, len(m.Catalog))
	for _, spec := range m.Catalog {
		table[spec.Name] = spec
	}
	return table
}
