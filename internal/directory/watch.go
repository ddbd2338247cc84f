package directory

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 200 * time.Millisecond

// RosterWatcher calls Reload whenever the roster file changes. The parent
// directory is watched because editors usually replace files instead of
// writing them in place.
type RosterWatcher struct {
	fsw    *fsnotify.Watcher
	file   string
	reload func(context.Context) error
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func NewRosterWatcher(path string, reload func(context.Context) error, logger *slog.Logger) (*RosterWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &RosterWatcher{fsw: fsw, file: abs, reload: reload, logger: logger}, nil
}

// Run blocks until ctx is done.
func (w *RosterWatcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.file {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(ctx)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("roster watcher error", "err", err)
		}
	}
}

func (w *RosterWatcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := w.reload(ctx); err != nil {
			w.logger.Warn("roster reload failed", "file", w.file, "err", err)
			return
		}
		w.logger.Debug("roster reloaded", "file", w.file)
	})
}
