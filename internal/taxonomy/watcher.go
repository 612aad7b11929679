package taxonomy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Source supplies the active taxonomy. Implementations must be safe for
// concurrent use: the classifier reads from a Source on every message.
type Source interface {
	Current() *Taxonomy
}

// Static is a Source that never changes.
type Static struct {
	taxonomy *Taxonomy
}

// NewStatic wraps a fixed taxonomy as a Source.
func NewStatic(t *Taxonomy) *Static {
	return &Static{taxonomy: t}
}

func (s *Static) Current() *Taxonomy { return s.taxonomy }

// Watcher reloads a taxonomy file when it changes on disk. A reload that
// fails validation keeps the previous taxonomy active and logs a warning,
// so a bad edit can never leave the classifier without phrase sets.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
	stop    chan struct{}

	mu      sync.RWMutex
	current *Taxonomy
}

// NewWatcher loads the taxonomy at path and prepares a filesystem watcher
// for it. The initial load must succeed; later reload failures are
// non-fatal.
func NewWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating taxonomy watcher: %w", err)
	}

	return &Watcher{
		path:    path,
		watcher: fw,
		logger:  logger,
		stop:    make(chan struct{}),
		current: initial,
	}, nil
}

// Current returns the active taxonomy.
func (w *Watcher) Current() *Taxonomy {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching for file changes. Runs a background goroutine
// until Stop is called or the context is cancelled.
//
// The parent directory is watched rather than the file itself: editors
// that write via rename (vim, sed -i) replace the inode and would
// otherwise silently detach the watch.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching taxonomy directory: %w", err)
	}

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	// Debounce bursts of events from a single save.
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("taxonomy watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	t, err := Load(w.path)
	if err != nil {
		w.logger.Warn("taxonomy reload failed, keeping previous version",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = t
	w.mu.Unlock()

	w.logger.Info("taxonomy reloaded",
		zap.String("path", w.path),
		zap.String("previous_version", prev.Version),
		zap.String("version", t.Version),
	)
}

// Stop shuts down the watcher and releases its filesystem resources.
func (w *Watcher) Stop() error {
	close(w.stop)
	return w.watcher.Close()
}

var (
	_ Source = (*Static)(nil)
	_ Source = (*Watcher)(nil)
)
