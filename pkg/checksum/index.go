// Package checksum maintains the per-file content digest index that drives
// change detection. A file is re-scanned only when its digest differs from
// the one recorded at the last successful sync.
package checksum

import (
	"sync"

	"github.com/depscope/depscope/pkg/model"
)

// Index maps file paths to the content digest recorded at the last sync.
type Index struct {
	mu    sync.Mutex
	known map[string]string
}

// NewIndex creates an index seeded from previously synced files. Tombstoned
// files must not be included by the caller.
func NewIndex(files []model.SourceFile) *Index {
	known := make(map[string]string, len(files))
	for _, f := range files {
		known[f.Path] = f.Digest
	}
	return &Index{known: known}
}

// Record compares an observed (path, digest) pair against the index and
// returns the resulting change kind. For added and modified files the index
// entry is updated immediately; removal is never decided here — it is derived
// from the walk via Removed, and the entry is dropped only once the sync
// engine confirms the tombstone.
func (ix *Index) Record(path, digest string) model.ChangeKind {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, ok := ix.known[path]
	switch {
	case !ok:
		ix.known[path] = digest
		return model.ChangeAdded
	case prev == digest:
		return model.ChangeUnchanged
	default:
		ix.known[path] = digest
		return model.ChangeModified
	}
}

// Restore puts back the digest that was current before a failed scan or
// commit, so the file is retried on the next run instead of being treated as
// unchanged.
func (ix *Index) Restore(path, digest string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if digest == "" {
		delete(ix.known, path)
		return
	}
	ix.known[path] = digest
}

// Previous returns the digest recorded before the current run touched path.
func (ix *Index) Previous(path string) (string, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	d, ok := ix.known[path]
	return d, ok
}

// Removed returns the indexed paths absent from the walked set. Callers pass
// the full set of paths observed during the current walk.
func (ix *Index) Removed(walked map[string]bool) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var removed []string
	for path := range ix.known {
		if !walked[path] {
			removed = append(removed, path)
		}
	}
	return removed
}

// Forget drops a path after the sync engine has confirmed its tombstone.
func (ix *Index) Forget(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.known, path)
}

// Len returns the number of indexed paths.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.known)
}
