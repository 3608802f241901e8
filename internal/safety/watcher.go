package safety

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads the rules file into a Screener when it changes.
type Watcher struct {
	path     string
	screener *Screener
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	logger   *zap.Logger
}

// NewWatcher creates a watcher on the directory containing the rules
// file. Watching the directory rather than the file survives the
// rename-on-save dance most editors do.
func NewWatcher(path string, screener *Screener, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating rules watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching rules directory: %w", err)
	}
	return &Watcher{
		path:     path,
		screener: screener,
		watcher:  fsw,
		stop:     make(chan struct{}),
		logger:   logger,
	}, nil
}

// Start begins processing filesystem events in a background goroutine.
func (w *Watcher) Start(ctx context.Context) {
	go w.processEvents(ctx)
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
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
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules watcher error", zap.Error(err))
		}
	}
}

// reload re-reads the rules file. A broken file keeps the previous
// rules active.
func (w *Watcher) reload() {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Error("rules reload failed, keeping previous rules",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}
	if err := w.screener.Reload(rules); err != nil {
		w.logger.Error("rules reload failed, keeping previous rules",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("safety rules reloaded", zap.String("path", w.path))
}
