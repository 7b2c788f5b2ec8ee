// Package testutil holds fakes and helpers shared by the run-level tests
// of the service and api packages.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
)

// Config loads the default configuration with HOME isolated and pacing
// disabled, so a whole scenario runs in milliseconds. Telemetry polls
// only once per run and history stays in memory.
func Config(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg, err := config.NewLoader().Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	cfg.Scheduler.DocumentPacing = "0s"
	cfg.Scheduler.SwapHold = "0s"
	cfg.Telemetry.PollInterval = "1h"
	cfg.Session.Enabled = false
	return cfg
}

// Snapshot wraps cfg with the built-in catalog.
func Snapshot(cfg *config.Config) FixedSnapshot {
	return FixedSnapshot{Snap: &config.Snapshot{Config: cfg, Catalog: config.BuiltinCatalog()}}
}

// TempFile creates a file with content under dir, creating parents.
func TempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}
