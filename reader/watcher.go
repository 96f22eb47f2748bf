package reader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360studio/registrygraph/canonical"
)

// Watcher tails a directory tree and hands settled files to a handler.
// Writers rarely produce a file atomically, so each path is debounced:
// the handler fires only after the path has been quiet for the settle
// window.
type Watcher struct {
	root   string
	settle time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher builds a watcher over root. A zero settle defaults to two
// seconds.
func NewWatcher(root string, settle time.Duration, logger *slog.Logger) *Watcher {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:    root,
		settle:  settle,
		logger:  logger,
		pending: make(map[string]*time.Timer),
	}
}

// Run watches until the context is cancelled, calling handle for every
// file that settles. New subdirectories are added to the watch as they
// appear. Handler errors are logged, not fatal; a watch loop that dies
// on one bad file defeats its purpose.
func (w *Watcher) Run(ctx context.Context, handle func(*canonical.RawDocument) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addTree(watcher, w.root); err != nil {
		return err
	}
	w.logger.Info("watching for documents", "root", w.root, "settle", w.settle)

	settled := make(chan string)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case path := <-settled:
			raw, err := canonical.ReadRawFile(path)
			if err != nil {
				w.logger.Warn("settled file unreadable", "path", path, "error", err)
				continue
			}
			if err := handle(raw); err != nil {
				w.logger.Error("handler failed", "path", path, "error", err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(watcher, event.Name); err != nil {
						w.logger.Warn("watch new directory failed", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) {
				w.bump(ctx, event.Name, settled)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// bump (re)arms the settle timer for a path.
func (w *Watcher) bump(ctx context.Context, path string, settled chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settle)
		return
	}
	w.pending[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		select {
		case settled <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
		return nil
	})
}
