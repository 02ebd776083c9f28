package stations

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/railmiles/internal/format"
)

// ReloadCallback is called after the dataset was replaced from disk.
type ReloadCallback func(count int)

const reloadDelay = 200 * time.Millisecond

// Watch reloads path into r whenever it changes, until ctx is cancelled.
//
// The parent directory is watched rather than the file itself so that
// editors and Write-then-rename updates are picked up. Bursts of events are
// debounced into a single reload.
func Watch(ctx context.Context, r *Registry, path string, logger *slog.Logger, cb ReloadCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("stations watcher: started", slog.String("path", abs))

	reload := func() {
		changed, err := r.LoadFile(abs)
		if err != nil {
			logger.Warn("stations watcher: reload failed", slog.String("path", abs), slog.String("error", err.Error()))
			return
		}
		if !changed {
			return
		}
		logger.Info("stations watcher: reloaded", slog.Int("stations", r.Len()))
		if cb != nil {
			cb(r.Len())
		}
	}
	trigger, stop := format.Debounce(reload, reloadDelay)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stations watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				trigger()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("stations watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
