package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	cwlog "github.com/camwatch/camwatch/internal/log"
)

const reloadDebounce = 500 * time.Millisecond

// Holder keeps the live configuration and swaps it atomically on reload.
// A reload that fails to parse or validate leaves the old config in place.
type Holder struct {
	mu      sync.RWMutex
	current *Config
	path    string
	logger  zerolog.Logger

	listenersMu sync.Mutex
	listeners   []func(*Config)
}

func NewHolder(initial *Config, path string) *Holder {
	if path != "" {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return &Holder{
		current: initial,
		path:    path,
		logger:  cwlog.WithComponent("config"),
	}
}

// Get returns the current configuration. Callers must treat it as read-only.
func (h *Holder) Get() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Preferences returns the current user toggles by value.
func (h *Holder) Preferences() PreferencesConfig {
	return h.Get().Preferences
}

// OnReload registers fn to be called with the new config after every
// successful reload.
func (h *Holder) OnReload(fn func(*Config)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload re-reads the config file.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("keeping previous configuration")
		return fmt.Errorf("reload: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = cfg
	h.mu.Unlock()

	if old.Preferences != cfg.Preferences {
		h.logger.Info().
			Bool("toggle_dnd", cfg.Preferences.ToggleDND).
			Bool("run_custom_scripts", cfg.Preferences.RunCustomScripts).
			Str("event", "config.preferences_changed").
			Msg("preferences updated")
	}

	h.listenersMu.Lock()
	listeners := append([]func(*Config){}, h.listeners...)
	h.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}

	h.logger.Info().Str("event", "config.reload_success").Str("path", h.path).Msg("configuration reloaded")
	return nil
}

// Watch reloads the config whenever the file changes, until ctx is done.
// The parent directory is watched rather than the file so that editors which
// replace the file by rename are picked up.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(h.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	h.logger.Info().Str("event", "config.watcher_started").Str("path", h.path).Msg("watching config file")

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != h.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				_ = h.Reload()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}
