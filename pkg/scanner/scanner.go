// Package scanner turns a single source file into symbol and edge drafts.
// Scanners are pure: they assign no ids and consult no global state, so the
// sync engine can run them in parallel and decide in-tree resolution later.
package scanner

import (
	"path/filepath"
	"sort"

	"github.com/depscope/depscope/pkg/model"
)

// SymbolDraft is a declared callable (or the file's module scope) before id
// assignment.
type SymbolDraft struct {
	Name      string
	Arity     int
	Kind      model.SymbolKind
	Signature string
	StartLine int
	EndLine   int
}

// EdgeDraft is an outgoing reference before target resolution. FromName and
// FromArity identify the declaring symbol within the same file.
type EdgeDraft struct {
	FromName  string
	FromArity int
	TargetRef string
	ArgCount  int
	Kind      model.RelationKind
	Hint      Hint
	Line      int
}

// FileScan is the immutable result of scanning one file.
type FileScan struct {
	Path     string
	Language string
	Symbols  []SymbolDraft
	Edges    []EdgeDraft
}

// Scanner parses one language. Implementations must be safe for concurrent
// use: Scan carries all per-call state.
type Scanner interface {
	// Language returns the language tag recorded on source files.
	Language() string
	// Extensions returns the file extensions this scanner claims, with dot.
	Extensions() []string
	// Scan parses content and extracts drafts. An unparseable file returns
	// a nil FileScan and an error; the caller wraps it as a ScanError and
	// must not drop previously known symbols for the file.
	Scan(path string, content []byte) (*FileScan, error)
}

// Registry routes files to the scanner claiming their extension.
type Registry struct {
	byExt map[string]Scanner
}

// NewRegistry builds a registry. Later scanners win on extension conflicts.
func NewRegistry(scanners ...Scanner) *Registry {
	r := &Registry{byExt: make(map[string]Scanner)}
	for _, s := range scanners {
		for _, ext := range s.Extensions() {
			r.byExt[ext] = s
		}
	}
	return r
}

// DefaultRegistry returns a registry with all built-in language scanners.
func DefaultRegistry() *Registry {
	return NewRegistry(NewGoScanner(), NewPythonScanner())
}

// ForPath returns the scanner for a path, if any claims its extension.
func (r *Registry) ForPath(path string) (Scanner, bool) {
	s, ok := r.byExt[filepath.Ext(path)]
	return s, ok
}

// Extensions returns all claimed extensions, sorted.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
