package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/memwall/internal/logging"
)

// Snapshot is a consistent view of configuration and catalog. Runs take
// one snapshot at start and keep it for their whole lifetime.
type Snapshot struct {
	Config  *Config
	Catalog *Catalog
}

// Store holds the current snapshot and swaps it when the config or
// scenario file changes on disk.
type Store struct {
	loader   *Loader
	logger   *logging.Logger
	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex
	debounce time.Duration
}

// NewStore loads the initial snapshot.
func NewStore(loader *Loader, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Store{loader: loader, logger: logger, debounce: 200 * time.Millisecond}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Reload re-reads every source. On error the previous snapshot stays.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := s.loader.Load()
	if err != nil {
		return err
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	catalog, err := LoadCatalog(cfg)
	if err != nil {
		return err
	}
	s.current.Store(&Snapshot{Config: cfg, Catalog: catalog})
	return nil
}

// watchedFiles returns the absolute paths whose changes trigger a reload.
func (s *Store) watchedFiles() []string {
	var files []string
	if f := s.loader.ConfigFile(); f != "" {
		files = append(files, f)
	}
	if snap := s.Current(); snap != nil && snap.Config.Scenarios.File != "" {
		files = append(files, snap.Config.Scenarios.File)
	}
	for i, f := range files {
		if abs, err := filepath.Abs(f); err == nil {
			files[i] = abs
		}
	}
	return files
}

// Watch reloads on file changes until ctx is cancelled. Parent directories
// are watched so editors that replace files by rename are seen.
func (s *Store) Watch(ctx context.Context) error {
	files := s.watchedFiles()
	if len(files) == 0 {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	targets := make(map[string]bool, len(files))
	for _, f := range files {
		targets[f] = true
		if err := watcher.Add(filepath.Dir(f)); err != nil {
			return fmt.Errorf("watching %s: %w", filepath.Dir(f), err)
		}
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := s.Reload(); err != nil {
				s.logger.Warn("config reload failed, keeping previous", "error", err)
				continue
			}
			s.logger.Info("config reloaded", "files", files)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("config watcher error", "error", err)
		}
	}
}
