package syncer

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long source writes must settle before a triggered
// sync fires. SQLite commits arrive as bursts of writes to the database and
// its journal files.
const DefaultDebounce = 2 * time.Second

// Watcher turns filesystem events on the memory log into sync triggers, so
// new memories land in the index within seconds instead of waiting out the
// polling interval.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	notify   func()
	logger   *slog.Logger
}

// NewWatcher watches the memory log's directory. The directory is watched
// rather than the file because SQLite swaps journal files around the
// database.
func NewWatcher(sourcePath string, notify func(), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(sourcePath)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		watcher:  fsw,
		path:     sourcePath,
		debounce: DefaultDebounce,
		notify:   notify,
		logger:   logger.With(slog.String("component", "sync_watcher")),
	}, nil
}

// Run delivers debounced triggers until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// Restart the debounce window on every relevant write.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.logger.Debug("sync_triggered_by_source_change")
			w.notify()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("sync_watcher_error", slog.String("error", err.Error()))
		}
	}
}

// relevant filters events down to writes touching the log or its journals.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(w.path)
	name := filepath.Base(event.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}
