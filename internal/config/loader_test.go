package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolateHome(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func TestLoader_Defaults(t *testing.T) {
	isolateHome(t)
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if cfg.Scheduler.BatchSize != 4 {
		t.Errorf("Scheduler.BatchSize = %d, want 4", cfg.Scheduler.BatchSize)
	}
	if cfg.Scheduler.CrashThresholdGB != 2.0 {
		t.Errorf("Scheduler.CrashThresholdGB = %v, want 2.0", cfg.Scheduler.CrashThresholdGB)
	}
	if cfg.Telemetry.PollInterval != "200ms" {
		t.Errorf("Telemetry.PollInterval = %q, want 200ms", cfg.Telemetry.PollInterval)
	}
	if cfg.Ollama.Enabled {
		t.Error("Ollama.Enabled = true, want false")
	}
	if len(cfg.Models.Catalog) != 3 {
		t.Fatalf("Models.Catalog has %d entries, want 3", len(cfg.Models.Catalog))
	}
	if w := cfg.Models.ModelTable()["qwen2.5:14b"].WeightsGB; w != 9.0 {
		t.Errorf("qwen weights = %v, want 9.0", w)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoader_EnvOverride(t *testing.T) {
	isolateHome(t)
	t.Setenv("MEMWALL_LOG_LEVEL", "debug")
	t.Setenv("MEMWALL_SCHEDULER_BATCH_SIZE", "8")
	t.Setenv("MEMWALL_OLLAMA_ENABLED", "true")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Scheduler.BatchSize != 8 {
		t.Errorf("Scheduler.BatchSize = %d, want 8", cfg.Scheduler.BatchSize)
	}
	if !cfg.Ollama.Enabled {
		t.Error("Ollama.Enabled = false, want true")
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "memwall.yaml")
	content := `
server:
  port: 9100
scheduler:
  crash_threshold_gb: 3.5
models:
  text: qwen2.5:14b
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100", cfg.Server.Port)
	}
	if cfg.Scheduler.CrashThresholdGB != 3.5 {
		t.Errorf("CrashThresholdGB = %v, want 3.5", cfg.Scheduler.CrashThresholdGB)
	}
	if cfg.Models.Text != "qwen2.5:14b" {
		t.Errorf("Models.Text = %q", cfg.Models.Text)
	}
	// Unset keys keep their defaults.
	if cfg.Scheduler.BatchSize != 4 {
		t.Errorf("Scheduler.BatchSize = %d, want 4", cfg.Scheduler.BatchSize)
	}
	if loader.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), path)
	}
}

func TestLoader_MalformedFile(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().WithConfigFile(path).Load(); err == nil {
		t.Fatal("Load() expected error for malformed yaml")
	}
}

func TestDefaultConfigYAML_Loads(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("default yaml does not validate: %v", err)
	}
}
