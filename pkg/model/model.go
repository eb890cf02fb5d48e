package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Confidence classifies how certain an edge's target resolution is.
// The values form a total order of certainty: resolved > conditional >
// dynamic > external.
type Confidence string

const (
	// ConfidenceResolved marks a static, unambiguous in-tree target.
	ConfidenceResolved Confidence = "resolved"
	// ConfidenceConditional marks a call reachable only under a runtime branch.
	ConfidenceConditional Confidence = "conditional"
	// ConfidenceDynamic marks a target determined by data not visible
	// statically (computed dispatch, reflection).
	ConfidenceDynamic Confidence = "dynamic"
	// ConfidenceExternal marks a target outside the scanned tree.
	ConfidenceExternal Confidence = "external"
)

// RelationKind is the type of relation an edge represents.
type RelationKind string

const (
	RelationCall    RelationKind = "call"
	RelationImport  RelationKind = "import"
	RelationCompose RelationKind = "compose"
)

// SymbolKind distinguishes callable symbols from the per-file module scope
// that owns import edges.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "function"
	SymbolModule   SymbolKind = "module"
)

// ChangeKind describes how a file changed relative to the checksum index.
type ChangeKind int

const (
	ChangeUnchanged ChangeKind = iota
	ChangeAdded
	ChangeModified
	ChangeRemoved
)

func (c ChangeKind) String() string {
	switch c {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	default:
		return "unchanged"
	}
}

// SourceFile is a scanned file tracked by the graph store.
type SourceFile struct {
	ID         int64     `json:"id"`
	Path       string    `json:"path"`
	Language   string    `json:"language"`
	Digest     string    `json:"digest"`
	SyncedAt   time.Time `json:"syncedAt"`
	Tombstoned bool      `json:"tombstoned,omitempty"`
}

// Symbol is a statically discoverable callable unit within a source file.
type Symbol struct {
	ID         string     `json:"id"`
	FileID     int64      `json:"fileId"`
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Arity      int        `json:"arity"`
	Kind       SymbolKind `json:"kind"`
	Signature  string     `json:"signature,omitempty"`
	StartLine  int        `json:"startLine,omitempty"`
	EndLine    int        `json:"endLine,omitempty"`
	Leaf       bool       `json:"leaf"`
	Tombstoned bool       `json:"tombstoned,omitempty"`
}

// Edge is a directed relation from one symbol to another, or to an
// external/unresolved target. Edges are facts derived from source; they are
// regenerated by scans and merged by the sync engine, never hand-edited.
type Edge struct {
	SourceID string `json:"sourceId"`
	// TargetID is empty for external or unresolved targets.
	TargetID string `json:"targetId,omitempty"`
	// TargetRef is the textual reference as written at the call site. It is
	// retained even when TargetID is known so that re-tagging a dangling edge
	// as external loses no information.
	TargetRef    string       `json:"targetRef"`
	Kind         RelationKind `json:"kind"`
	Confidence   Confidence   `json:"confidence"`
	Observations int          `json:"observations"`
}

// Internal reports whether the edge points at a known in-tree symbol.
func (e Edge) Internal() bool { return e.TargetID != "" }

// Cycle is a derived view: an ordered closed walk of symbol ids over
// resolved/conditional edges. Cycles are recomputed on demand and never
// persisted.
type Cycle struct {
	// Members is the sorted set of symbol ids in the strongly connected
	// component.
	Members []string `json:"members"`
	// Walk is a closed walk visiting the component, starting and ending at
	// the same symbol.
	Walk []string `json:"walk"`
}

// Certainty qualifies an impact entry.
type Certainty string

const (
	CertaintyCertain  Certainty = "certain"
	CertaintyPossible Certainty = "possible"
)

// ImpactEntry is one transitive dependent found by reverse reachability.
type ImpactEntry struct {
	Symbol Symbol `json:"symbol"`
	// Depth is the shortest-path distance from the impact target.
	Depth     int       `json:"depth"`
	Certainty Certainty `json:"certainty"`
}

// FileError records a per-file failure collected during a sync run.
type FileError struct {
	Path  string `json:"path"`
	Stage string `json:"stage"` // "scan" or "commit"
	Err   string `json:"error"`
}

// SyncReport summarizes one sync run for the consuming layer.
type SyncReport struct {
	RunID         string      `json:"runId"`
	Started       time.Time   `json:"started"`
	Finished      time.Time   `json:"finished"`
	FilesAdded    int         `json:"filesAdded"`
	FilesModified int         `json:"filesModified"`
	FilesRemoved  int         `json:"filesRemoved"`
	FilesFailed   int         `json:"filesFailed"`
	Errors        []FileError `json:"errors,omitempty"`
	// CreatedSymbols and TombstonedSymbols list symbol ids that appeared or
	// disappeared during the run.
	CreatedSymbols    []string `json:"createdSymbols,omitempty"`
	TombstonedSymbols []string `json:"tombstonedSymbols,omitempty"`
}

// Changed reports whether the run applied any graph mutation.
func (r *SyncReport) Changed() bool {
	return r.FilesAdded+r.FilesModified+r.FilesRemoved > 0
}

// FileInput is one entry of the file set handed to the engine by a directory
// walker. Content is read before any engine lock is taken.
type FileInput struct {
	Path     string
	Language string
	Content  []byte
	Digest   string
}

// SymbolID derives the stable id for a symbol. Identity is (file, name,
// arity): a rename produces a new id, so a rename is observed as delete+add
// rather than an update.
func SymbolID(path, name string, arity int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%s/%d", path, name, arity)))
	return hex.EncodeToString(sum[:12])
}
