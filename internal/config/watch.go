// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/retrochat/internal/logging"
)

// DefaultWatchDebounce is how long Watch waits for writes to settle.
const DefaultWatchDebounce = 250 * time.Millisecond

// WatchOptions tunes Watch.
type WatchOptions struct {
	Debounce time.Duration
	Logger   *log.Logger
}

// Watch reloads the config file at path whenever it changes and passes the
// result to onChange. Invalid files are logged and skipped. Watch blocks
// until ctx is done.
//
// The parent directory is watched rather than the file, so editors that
// save by renaming a temp file over the original are seen.
func Watch(ctx context.Context, path string, opts WatchOptions, onChange func(*Config)) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultWatchDebounce
	}
	logger := logging.OrDiscard(opts.Logger)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	timer := time.NewTimer(opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(opts.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "err", err)

		case <-timer.C:
			cfg, err := Load(path, WithLogger(logger))
			if err != nil {
				logger.Warn("ignoring invalid config change", "path", path, "err", err)
				continue
			}
			logger.Info("config reloaded", "path", path)
			onChange(cfg)
		}
	}
}
