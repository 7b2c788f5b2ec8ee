package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/memwall/internal/config"
	"github.com/hugo-lorenzo-mato/memwall/internal/logging"
	"github.com/hugo-lorenzo-mato/memwall/internal/session"
)

// newLoader returns a loader sharing the global viper instance so bound
// flags take precedence.
func newLoader() *config.Loader {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	return loader
}

// loadSnapshot loads and validates configuration and the scenario catalog.
func loadSnapshot() (*config.Snapshot, error) {
	cfg, err := newLoader().Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	catalog, err := config.LoadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("loading scenarios: %w", err)
	}
	return &config.Snapshot{Config: cfg, Catalog: catalog}, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
}

// openSessions opens the run history store. A disabled store keeps
// history in memory for the life of the process.
func openSessions(cfg *config.Config) (session.Store, error) {
	if !cfg.Session.Enabled {
		return session.NewMemoryStore(), nil
	}
	path := cfg.Session.Path
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	store, err := session.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening session store %s: %w", path, err)
	}
	return store, nil
}

func useColor() bool {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return logging.IsTerminal(os.Stdout)
}

// staticSnapshot serves one snapshot for the life of a command.
type staticSnapshot struct {
	snap *config.Snapshot
}

func (s staticSnapshot) Current() *config.Snapshot { return s.snap }
