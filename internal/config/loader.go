package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: "MEMWALL",
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (MEMWALL_*)
// 3. Project config (.memwall.yaml in current directory)
// 4. User config (~/.config/memwall/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	setDefaults(l.v)

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".memwall")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if dir, err := UserConfigDir(); err == nil {
			l.v.AddConfigPath(dir)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// UserConfigDir returns ~/.config/memwall.
func UserConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "memwall"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.record_dir", "")

	v.SetDefault("ollama.enabled", false)
	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("ollama.request_timeout", "300s")
	v.SetDefault("ollama.load_timeout", "120s")
	v.SetDefault("ollama.num_predict", 800)
	v.SetDefault("ollama.temperature", 0.5)
	v.SetDefault("ollama.top_p", 0.9)
	v.SetDefault("ollama.repeat_penalty", 1.1)
	v.SetDefault("ollama.scripted_load_delay", "1.5s")

	v.SetDefault("telemetry.poll_interval", "200ms")
	v.SetDefault("telemetry.poll_capacity", 256)

	v.SetDefault("scheduler.batch_size", 4)
	v.SetDefault("scheduler.crash_threshold_gb", 2.0)
	v.SetDefault("scheduler.document_pacing", "500ms")
	v.SetDefault("scheduler.swap_hold", "1s")
	v.SetDefault("scheduler.max_context_tokens", 60000)
	v.SetDefault("scheduler.queue_size", 64)
	v.SetDefault("scheduler.content_limit_bytes", 4096)
	v.SetDefault("scheduler.offload_by_default", false)

	v.SetDefault("corpus.dir", "")

	v.SetDefault("session.enabled", true)
	v.SetDefault("session.path", ".memwall/sessions.db")

	v.SetDefault("costs.local_per_million_tokens", 0.0)
	v.SetDefault("costs.cloud_per_million_tokens", 10.0)
	v.SetDefault("costs.without_offload_factor", 3.0)

	v.SetDefault("models.text", "llama3.1:8b")
	v.SetDefault("models.vision", "llava:13b")
	v.SetDefault("models.catalog", []map[string]any{
		{"name": "llama3.1:8b", "weights_gb": 4.7, "description": "text analysis"},
		{"name": "qwen2.5:14b", "weights_gb": 9.0, "description": "cross-modal reasoning"},
		{"name": "llava:13b", "weights_gb": 8.0, "description": "image and video analysis"},
	})

	v.SetDefault("scenarios.file", "")
}
