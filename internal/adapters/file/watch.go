package file

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for writes to settle before reloading.
const DefaultDebounce = 100 * time.Millisecond

// ModelWatcher reloads a model file when it changes and reports what changed.
type ModelWatcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

// WatchOption configures the ModelWatcher.
type WatchOption func(*ModelWatcher)

// WithDebounce sets the settle time after the last file event.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *ModelWatcher) {
		w.debounce = d
	}
}

// WithWatchLogger configures a logger for the ModelWatcher.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *ModelWatcher) {
		w.logger = logger
	}
}

// NewModelWatcher creates a watcher for the model file at path.
func NewModelWatcher(path string, opts ...WatchOption) *ModelWatcher {
	w := &ModelWatcher{
		path:     path,
		debounce: DefaultDebounce,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch calls onChange with the difference between consecutive valid versions of the file,
// starting from initial, until ctx ends. Versions that fail to parse are logged and skipped.
// The parent directory is watched so editors that replace the file are followed.
func (w *ModelWatcher) Watch(ctx context.Context, initial domain.Model, onChange func(domain.Model, *domain.ModelDiff)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	w.logger.Info("watching model", "path", abs)

	current := initial
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op == fsnotify.Chmod {
				continue
			}
			w.logger.Debug("model file event", "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)

		case <-timer.C:
			next, err := LoadModel(abs)
			if err != nil {
				w.logger.Warn("model reload failed, keeping previous version", "err", err)
				continue
			}
			diff := domain.Diff(current, next)
			if diff.IsEmpty() {
				continue
			}
			current = next
			w.logger.Info("model changed", "count", diff.Len())
			onChange(next, diff)
		}
	}
}
