package agent

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/harun/agentsim/internal/config"
	"github.com/rs/zerolog/log"
)

// ReloadCallback is called after every reload attempt
type ReloadCallback func(agents []string, err error)

// WatcherConfig holds configuration for the catalog watcher
type WatcherConfig struct {
	ConfigPath         string
	Catalog            *Catalog
	Static             []*Agent // always present, ahead of configured agents
	StabilityThreshold time.Duration
	OnReload           ReloadCallback
}

// Watcher reloads a Catalog when the agent config file changes
type Watcher struct {
	watcher            *fsnotify.Watcher
	configPath         string
	catalog            *Catalog
	static             []*Agent
	stabilityThreshold time.Duration
	onReload           ReloadCallback
	done               chan struct{}
	timer              *time.Timer
	timerMu            sync.Mutex
	stopOnce           sync.Once
}

// NewWatcher creates a catalog watcher
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.ConfigPath == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if cfg.StabilityThreshold == 0 {
		cfg.StabilityThreshold = 200 * time.Millisecond
	}

	return &Watcher{
		watcher:            watcher,
		configPath:         filepath.Clean(cfg.ConfigPath),
		catalog:            cfg.Catalog,
		static:             cfg.Static,
		stabilityThreshold: cfg.StabilityThreshold,
		onReload:           cfg.OnReload,
		done:               make(chan struct{}),
	}, nil
}

// Start watches the directory holding the config file. Editors replace
// files by rename, so the file itself is not watched.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.eventLoop()

	log.Info().
		Str("path", w.configPath).
		Msg("Agent catalog watcher started")

	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	log.Info().Msg("Agent catalog watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
			w.Reload()
		}
	})
}

// Reload reads the config file and replaces the catalog. On error the
// catalog is left as it was.
func (w *Watcher) Reload() error {
	names, err := w.reload()
	if err != nil {
		log.Error().Err(err).Str("path", w.configPath).Msg("Failed to reload agent catalog")
	} else {
		log.Info().Strs("agents", names).Msg("Agent catalog reloaded")
	}

	if w.onReload != nil {
		w.onReload(names, err)
	}
	return err
}

func (w *Watcher) reload() ([]string, error) {
	cfg, err := config.Load(w.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	loaded, err := FromConfig(cfg.Agents)
	if err != nil {
		return nil, err
	}

	agents := make([]*Agent, 0, len(w.static)+len(loaded))
	agents = append(agents, w.static...)
	agents = append(agents, loaded...)
	if err := w.catalog.Replace(agents); err != nil {
		return nil, err
	}
	return w.catalog.Names(), nil
}
