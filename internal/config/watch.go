package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the config file at path and calls onChange with each
// successfully reloaded Config. It blocks until ctx is cancelled.
//
// The watch is placed on the containing directory rather than the file:
// atomic saves (write to a temp file, rename over the original) replace the
// inode and would silently detach a watch on the file itself. A rewrite that
// fails to load or validate is logged and dropped, so the previously applied
// config stays in effect.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", abs)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			reload(abs, onChange)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// reload parses the rewritten file and applies it via onChange.
func reload(path string, onChange func(*Config)) {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("config: reload failed, keeping previous config",
			"path", path, "err", err)
		return
	}
	slog.Info("config: reloaded", "path", path, "rules", len(cfg.Alerts.Rules))
	onChange(cfg)
}
