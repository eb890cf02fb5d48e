// Package watcher emits batched change notifications for a workspace so
// watch mode can trigger incremental syncs. Events carry paths only; the
// sync engine re-walks and re-digests, so a spurious notification costs one
// digest comparison, never a wrong graph.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/depscope/depscope/pkg/logging"
)

// ChangeEvent is a batch of filesystem changes under the workspace root.
type ChangeEvent struct {
	Paths     []string
	Timestamp time.Time
}

// Watcher watches a workspace tree for source file changes.
type Watcher struct {
	fsw        *fsnotify.Watcher
	root       string
	extensions map[string]bool
	excludes   map[string]bool
	events     chan ChangeEvent
}

// New creates a watcher for root. extensions lists the file extensions to
// report (with dot); excludes lists directory names to skip.
func New(root string, extensions, excludes []string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fsw:        fsw,
		root:       root,
		extensions: make(map[string]bool, len(extensions)),
		excludes:   make(map[string]bool, len(excludes)),
		events:     make(chan ChangeEvent, 100),
	}
	for _, ext := range extensions {
		w.extensions[ext] = true
	}
	for _, name := range excludes {
		w.excludes[name] = true
	}
	return w, nil
}

// Start registers all current directories and begins forwarding events
// until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	count := 0
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			logging.Warn("Failed to watch directory", "path", path, "error", err)
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk workspace for watching: %w", err)
	}

	logging.Info("Watching workspace", "root", w.root, "directories", count)
	go w.run(ctx)
	return nil
}

// Events returns the change event channel. It is closed when the watcher
// stops.
func (w *Watcher) Events() <-chan ChangeEvent {
	return w.events
}

func (w *Watcher) skipDir(name string) bool {
	return w.excludes[name] || strings.HasPrefix(name, ".")
}

func (w *Watcher) run(ctx context.Context) {
	var batch []string
	flushTimer := time.NewTimer(0)
	if !flushTimer.Stop() {
		<-flushTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			close(w.events)
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				close(w.events)
				return
			}
			if w.relevant(event) {
				batch = append(batch, event.Name)
				flushTimer.Reset(100 * time.Millisecond)
			}

		case <-flushTimer.C:
			if len(batch) > 0 {
				w.events <- ChangeEvent{Paths: batch, Timestamp: time.Now()}
				batch = nil
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				close(w.events)
				return
			}
			logging.Error("Watcher error", "error", err)
		}
	}
}

// relevant filters events to scannable files and keeps the directory set
// current as new directories appear.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if w.skipDir(name) {
		return false
	}

	if event.Op.Has(fsnotify.Create) {
		// A created path may be a directory that needs watching. Add is a
		// no-op for plain files with extensions we track.
		if filepath.Ext(name) == "" {
			if err := w.fsw.Add(event.Name); err == nil {
				logging.Debug("Watching new directory", "path", event.Name)
			}
		}
	}

	return w.extensions[filepath.Ext(event.Name)]
}
