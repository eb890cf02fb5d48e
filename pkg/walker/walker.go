// Package walker collects the scannable files of a workspace. It reads
// file contents and computes digests up front, so the sync engine never
// touches the filesystem while holding locks.
package walker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/depscope/depscope/pkg/logging"
	"github.com/depscope/depscope/pkg/model"
	"github.com/depscope/depscope/pkg/scanner"
)

// defaultExcludes are directory names skipped in every walk.
var defaultExcludes = []string{".git", ".hg", ".depscope", "node_modules", "vendor", "__pycache__"}

// Walker walks one workspace root for files the scanner registry claims.
type Walker struct {
	root     string
	registry *scanner.Registry
	excludes map[string]bool
}

// New creates a walker rooted at root. extraExcludes adds directory names
// to the built-in exclusion set.
func New(root string, reg *scanner.Registry, extraExcludes []string) *Walker {
	excludes := make(map[string]bool, len(defaultExcludes)+len(extraExcludes))
	for _, name := range defaultExcludes {
		excludes[name] = true
	}
	for _, name := range extraExcludes {
		excludes[name] = true
	}
	return &Walker{root: root, registry: reg, excludes: excludes}
}

// Walk returns the readable source files under the root, with content and
// digest, plus a failure entry per unreadable file. Paths are relative to
// the root with forward slashes, so the graph is portable across checkouts.
func (w *Walker) Walk(ctx context.Context) ([]model.FileInput, []model.FileError, error) {
	var files []model.FileInput
	var failures []model.FileError

	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err != nil {
			// An unreadable directory is reported once and skipped.
			failures = append(failures, model.FileError{
				Path: w.relative(path), Stage: "scan", Err: err.Error(),
			})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != w.root && (w.excludes[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		sc, ok := w.registry.ForPath(path)
		if !ok {
			return nil
		}

		rel := w.relative(path)
		content, err := os.ReadFile(path)
		if err != nil {
			failures = append(failures, model.FileError{
				Path: rel, Stage: "scan", Err: err.Error(),
			})
			return nil
		}

		sum := sha256.Sum256(content)
		files = append(files, model.FileInput{
			Path:     rel,
			Language: sc.Language(),
			Content:  content,
			Digest:   hex.EncodeToString(sum[:]),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	logging.Debug("Workspace walked",
		"root", w.root, "files", len(files), "unreadable", len(failures))
	return files, failures, nil
}

func (w *Walker) relative(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
