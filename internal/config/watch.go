// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
)

const debounceDuration = 500 * time.Millisecond

// Holder keeps the current configuration and reloads it when the file
// changes. Listeners see only configurations that passed validation.
type Holder struct {
	loader *Loader
	path   string
	logger zerolog.Logger

	mu        sync.RWMutex
	current   AppConfig
	listeners []func(old, next AppConfig)

	watcher *fsnotify.Watcher
}

// NewHolder wraps an already loaded configuration.
func NewHolder(initial AppConfig, loader *Loader, path string) *Holder {
	return &Holder{
		loader:  loader,
		path:    path,
		current: initial,
		logger:  xglog.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() AppConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// OnReload registers fn to run after every successful reload.
func (h *Holder) OnReload(fn func(old, next AppConfig)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Reload loads the file again. A failed load keeps the previous config.
func (h *Holder) Reload() error {
	next, err := h.loader.Load()
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}

	h.mu.Lock()
	old := h.current
	h.current = next
	listeners := append([]func(old, next AppConfig){}, h.listeners...)
	h.mu.Unlock()

	logChanges(h.logger, old, next)
	h.logger.Info().Str("event", "config.reloaded").Str("path", h.path).Msg("configuration reloaded")
	for _, fn := range listeners {
		fn(old, next)
	}
	return nil
}

// Watch starts watching the config file until ctx ends. The directory is
// watched so editors that replace the file are still seen.
func (h *Holder) Watch(ctx context.Context) error {
	if h.path == "" {
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", h.path, err)
	}
	h.watcher = w
	h.logger.Info().Str("event", "config.watcher_started").Str("path", h.path).Msg("watching config file for changes")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	target := filepath.Clean(h.path)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		_ = h.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str("event", "config.watcher_stopped").Msg("config watcher stopped")
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			h.logger.Debug().Str("event", "config.file_changed").Str("op", event.Op.String()).Msg("config file changed")
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDuration, func() {
				if ctx.Err() != nil {
					return
				}
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
				}
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

func logChanges(logger zerolog.Logger, old, next AppConfig) {
	if old.LogLevel != next.LogLevel {
		logger.Info().Str("old", old.LogLevel).Str("new", next.LogLevel).Msg("config changed: logLevel")
	}
	if old.Recorder != next.Recorder {
		logger.Info().Interface("old", old.Recorder).Interface("new", next.Recorder).Msg("config changed: recorder")
	}
	if old.HLS != next.HLS {
		logger.Info().Interface("old", old.HLS).Interface("new", next.HLS).Msg("config changed: hls")
	}
	if old.Direct != next.Direct {
		logger.Info().Interface("old", old.Direct).Interface("new", next.Direct).Msg("config changed: direct")
	}
	if old.FFmpeg != next.FFmpeg {
		logger.Info().Interface("old", old.FFmpeg).Interface("new", next.FFmpeg).Msg("config changed: ffmpeg")
	}
	if old.API != next.API || old.Tele != next.Tele || old.DataDir != next.DataDir {
		logger.Warn().Msg("api, telemetry and dataDir changes take effect after restart")
	}
}
