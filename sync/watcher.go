package sync

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/unicode/norm"

	"github.com/mgost/mgost/logging"
)

const debounceInterval = 300 * time.Millisecond

// Watcher monitors the project root and feeds changed paths into the
// queue. Events are debounced so an editor's write burst becomes one
// batch instead of one pass per write.
type Watcher struct {
	root    string
	queue   *ChangeQueue
	ignore  *Ignore
	watcher *fsnotify.Watcher
}

// NewWatcher creates a filesystem watcher over root.
func NewWatcher(root string, queue *ChangeQueue, ignore *Ignore) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:    root,
		queue:   queue,
		ignore:  ignore,
		watcher: w,
	}, nil
}

// Start begins watching and debouncing events. Blocks until ctx is
// cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	log := logging.Sub("watcher")

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	log.Info("watching", "root", w.root)

	pending := make(map[string]struct{})
	timer := time.NewTimer(debounceInterval)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			relPath := w.toRelPath(event.Name)
			if relPath == "" {
				continue
			}
			base := filepath.Base(event.Name)
			if strings.HasPrefix(base, ".") {
				continue
			}
			fi, statErr := os.Lstat(event.Name)
			isDir := statErr == nil && fi.IsDir()
			if w.ignore.Match(base, isDir) {
				continue
			}

			pending[relPath] = struct{}{}
			timer.Reset(debounceInterval)

			// New directories need their own watch to see files
			// created inside them later.
			if event.Has(fsnotify.Create) && isDir {
				w.watcher.Add(event.Name) //nolint:errcheck
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", "err", err)

		case <-timer.C:
			if len(pending) > 0 {
				paths := make([]string, 0, len(pending))
				for p := range pending {
					paths = append(paths, p)
				}
				w.queue.PushMany(paths)
				log.Debug("flushed changes", "count", len(paths))
				pending = make(map[string]struct{})
			}
		}
	}
}

// toRelPath converts an absolute event path to the project-relative
// slash form the rest of the engine uses.
func (w *Watcher) toRelPath(absPath string) string {
	rel, err := filepath.Rel(w.root, absPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return norm.NFC.String(filepath.ToSlash(rel))
}

// addRecursive adds root and every non-hidden, non-ignored
// subdirectory to the watch set.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible dirs
		}
		if !d.IsDir() {
			return nil
		}
		if path != root {
			if strings.HasPrefix(d.Name(), ".") || w.ignore.Match(d.Name(), true) {
				return filepath.SkipDir
			}
		}
		return w.watcher.Add(path)
	})
}

// Close closes the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
