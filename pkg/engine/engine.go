// Package engine is the library facade over the dependency graph: it owns
// the store, the checksum index, and the sync builder, and enforces the
// locking contract between sync runs and queries. Queries share a read
// lock, so they block per-file commits but never each other; a query sees
// the graph between file commits, never inside one.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/depscope/depscope/pkg/checksum"
	"github.com/depscope/depscope/pkg/cycles"
	"github.com/depscope/depscope/pkg/impact"
	"github.com/depscope/depscope/pkg/model"
	"github.com/depscope/depscope/pkg/scanner"
	"github.com/depscope/depscope/pkg/store"
	"github.com/depscope/depscope/pkg/syncer"
)

// ErrSymbolNotFound is returned when a queried symbol id does not exist.
var ErrSymbolNotFound = errors.New("symbol not found")

// Options tunes an Engine.
type Options struct {
	// Workers caps concurrent file scans during sync.
	Workers int
	// ImpactDepth is the default reverse-reachability cap when a caller
	// passes no explicit depth.
	ImpactDepth int
}

// DefaultImpactDepth bounds impact analysis when no depth is configured.
const DefaultImpactDepth = 10

// Engine coordinates sync runs and graph queries over one store.
type Engine struct {
	store       *store.Store
	index       *checksum.Index
	builder     *syncer.Builder
	impactDepth int

	// mu serializes per-file commits against queries. The builder takes
	// the write side once per file, so long syncs interleave with reads.
	mu sync.RWMutex

	syncMu sync.Mutex
}

// New builds an Engine over an opened store, seeding the checksum index
// from the files recorded by previous syncs.
func New(st *store.Store, opts Options) (*Engine, error) {
	files, err := st.Files(context.Background())
	if err != nil {
		return nil, fmt.Errorf("seed checksum index: %w", err)
	}
	depth := opts.ImpactDepth
	if depth <= 0 {
		depth = DefaultImpactDepth
	}

	e := &Engine{
		store:       st,
		index:       checksum.NewIndex(files),
		impactDepth: depth,
	}
	e.builder = syncer.New(st, scanner.DefaultRegistry(), e.index, syncer.Options{
		Workers:    opts.Workers,
		CommitLock: &e.mu,
	})
	return e, nil
}

// Close closes the underlying store.
func (e *Engine) Close() error { return e.store.Close() }

// State reports the current sync phase.
func (e *Engine) State() syncer.State { return e.builder.State() }

// Sync reconciles a walked file set with the graph. Only one sync runs at
// a time; queries interleave between its per-file commits.
func (e *Engine) Sync(ctx context.Context, files []model.FileInput, unreadable []model.FileError) (*model.SyncReport, error) {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()
	return e.builder.Sync(ctx, files, unreadable)
}

// Files lists the live source files.
func (e *Engine) Files(ctx context.Context) ([]model.SourceFile, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Files(ctx)
}

// SymbolsIn lists the live symbols of one file.
func (e *Engine) SymbolsIn(ctx context.Context, path string) ([]model.Symbol, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.SymbolsIn(ctx, path)
}

// Symbol returns one symbol by id.
func (e *Engine) Symbol(ctx context.Context, id string) (model.Symbol, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sym, ok, err := e.store.GetSymbol(ctx, id)
	if err != nil {
		return model.Symbol{}, err
	}
	if !ok {
		return model.Symbol{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}
	return sym, nil
}

// EdgesFrom returns a symbol's outgoing edges.
func (e *Engine) EdgesFrom(ctx context.Context, id string) ([]model.Edge, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.EdgesFrom(ctx, id)
}

// FindCycles recomputes dependency cycles from the current graph snapshot.
func (e *Engine) FindCycles(ctx context.Context) ([]model.Cycle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	edges, err := e.store.InternalEdges(ctx)
	if err != nil {
		return nil, err
	}
	return cycles.Find(edges), nil
}

// ImpactOf returns the transitive dependents of one symbol, nearest first.
// depth <= 0 selects the configured default. A tombstoned symbol has no
// impact surface and is reported as not found.
func (e *Engine) ImpactOf(ctx context.Context, id string, depth int) ([]model.ImpactEntry, error) {
	if depth <= 0 {
		depth = e.impactDepth
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	sym, ok, err := e.store.GetSymbol(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok || sym.Tombstoned {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, id)
	}

	edges, err := e.store.InternalEdges(ctx)
	if err != nil {
		return nil, err
	}
	results := impact.Analyze(id, edges, depth)
	if len(results) == 0 {
		return nil, nil
	}

	live, err := e.store.LiveSymbols(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Symbol, len(live))
	for _, s := range live {
		byID[s.ID] = s
	}

	entries := make([]model.ImpactEntry, 0, len(results))
	for _, r := range results {
		entries = append(entries, model.ImpactEntry{
			Symbol:    byID[r.ID],
			Depth:     r.Depth,
			Certainty: r.Certainty,
		})
	}
	return entries, nil
}

// ResolveRef turns a symbol reference into an id. It accepts either a raw
// id or the form "path#name/arity" as printed by the symbols listing.
func ResolveRef(ref string) (string, error) {
	path, rest, ok := strings.Cut(ref, "#")
	if !ok {
		return ref, nil
	}
	name, arityStr, ok := strings.Cut(rest, "/")
	if !ok {
		return "", fmt.Errorf("malformed symbol reference %q, want path#name/arity", ref)
	}
	arity, err := strconv.Atoi(arityStr)
	if err != nil {
		return "", fmt.Errorf("malformed arity in %q: %w", ref, err)
	}
	return model.SymbolID(path, name, arity), nil
}
