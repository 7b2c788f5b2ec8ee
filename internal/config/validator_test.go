package config

import (
	"errors"
	"testing"
	"time"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	isolateHome(t)
	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return cfg
}

func TestValidator(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad duration", func(c *Config) { c.Telemetry.PollInterval = "soon" }, "telemetry.poll_interval"},
		{"zero poll interval", func(c *Config) { c.Telemetry.PollInterval = "0s" }, "telemetry.poll_interval"},
		{"zero batch", func(c *Config) { c.Scheduler.BatchSize = 0 }, "scheduler.batch_size"},
		{"zero threshold", func(c *Config) { c.Scheduler.CrashThresholdGB = 0 }, "scheduler.crash_threshold_gb"},
		{"bad ollama url", func(c *Config) { c.Ollama.Enabled = true; c.Ollama.URL = "localhost" }, "ollama.url"},
		{"unknown text model", func(c *Config) { c.Models.Text = "gpt" }, "models.text"},
		{"session without path", func(c *Config) { c.Session.Path = " " }, "session.path"},
		{"factor below one", func(c *Config) { c.Costs.WithoutOffloadFactor = 0.5 }, "costs.without_offload_factor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ValidateConfig() = %v, want ValidationErrors", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verrs)
			}
		})
	}
}

func TestValidator_ZeroPacingAllowed(t *testing.T) {
	cfg := validConfig(t)
	cfg.Scheduler.DocumentPacing = "0s"
	cfg.Scheduler.SwapHold = "0s"
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("ValidateConfig() error = %v", err)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("250ms", time.Second); got != 250*time.Millisecond {
		t.Errorf("Duration(250ms) = %v", got)
	}
	if got := Duration("", time.Second); got != time.Second {
		t.Errorf("Duration(\"\") = %v, want fallback", got)
	}
}
