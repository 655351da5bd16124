package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"unitrader/internal/logger"
	"unitrader/internal/risk"
)

// Watcher re-loads the config when the file changes and hands validated
// snapshots to subscribers. A file that fails validation is rejected and the
// previous snapshot stays active.
type Watcher struct {
	path string

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)
}

// NewWatcher loads path once and starts watching it for changes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, current: cfg}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("watching config failed (%s): %w", path, err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		w.reload(evt.Name)
	})
	v.WatchConfig()
	return w, nil
}

// Current returns the latest valid snapshot.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Limits returns the latest risk limits; wire this as the limits source for
// cycles and monitors so edits apply without a restart.
func (w *Watcher) Limits() func() risk.Limits {
	return func() risk.Limits { return w.Current().Risk.Limits() }
}

// Subscribe registers a listener for future snapshots.
func (w *Watcher) Subscribe(fn func(*Config)) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) reload(name string) {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Errorf("config reload rejected (%s): %v", filepath.Base(name), err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	listeners := make([]func(*Config), len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()
	logger.Infof("config reloaded from %s", filepath.Base(w.path))

	for _, fn := range listeners {
		go func(cb func(*Config)) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config listener panic: %v", r)
				}
			}()
			cb(cfg)
		}(fn)
	}
}
