// Package watcher keeps an index current by re-running incremental indexing
// when the watched tree changes.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/dlawler/docchat/internal/config"
	"github.com/dlawler/docchat/internal/indexer"
)

// Watcher triggers incremental indexing runs on file changes. Because a run
// skips unchanged files by hash, re-running the whole pass on every change
// batch is cheap; the watcher only decides when, not what.
type Watcher struct {
	root     string
	indexer  *indexer.Indexer
	sink     indexer.Sink
	debounce time.Duration
	excluded map[string]bool

	mu      sync.Mutex
	pending bool
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounce sets how long to wait after the last event before indexing.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithSink forwards run progress events.
func WithSink(sink indexer.Sink) Option {
	return func(w *Watcher) { w.sink = sink }
}

// New creates a watcher over root.
func New(root string, ix *indexer.Indexer, cfg *config.Config, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     absRoot,
		indexer:  ix,
		sink:     indexer.NopSink,
		debounce: 500 * time.Millisecond,
		excluded: make(map[string]bool),
	}
	for _, d := range cfg.Indexing.ExcludeDirs {
		w.excluded[d] = true
	}
	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start runs an initial indexing pass, then watches until the context is
// cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if _, err := w.indexer.Run(ctx, w.root, w.sink); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := w.addDirectories(fw); err != nil {
		return err
	}

	log.Info("Watching for file changes", "root", w.root)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.ignored(event.Name) {
				continue
			}
			// New directories need watches of their own.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := fw.Add(event.Name); err != nil {
						log.Debug("Failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			log.Debug("File event", "op", event.Op.String(), "path", event.Name)
			w.schedule(timer)

		case <-timer.C:
			w.mu.Lock()
			w.pending = false
			w.mu.Unlock()
			if _, err := w.indexer.Run(ctx, w.root, w.sink); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Error("Re-index failed", "error", err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer.
func (w *Watcher) schedule(timer *time.Timer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending && !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	w.pending = true
	timer.Reset(w.debounce)
}

// addDirectories registers watches on the root and every non-excluded
// subdirectory.
func (w *Watcher) addDirectories(fw *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != w.root && (w.excluded[name] || strings.HasPrefix(name, ".")) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// ignored filters events under excluded or hidden directories.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return true
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part != "." && part != ".." && (w.excluded[part] || strings.HasPrefix(part, ".")) {
			return true
		}
	}
	return false
}
