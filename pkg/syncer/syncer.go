// Package syncer reconciles the scanned source tree with the graph store.
// A sync run classifies files against the checksum index, scans changed
// files in parallel, resolves references against a global name index, and
// commits one transaction per file so failures stay isolated.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/depscope/depscope/pkg/checksum"
	"github.com/depscope/depscope/pkg/logging"
	"github.com/depscope/depscope/pkg/model"
	"github.com/depscope/depscope/pkg/scanner"
	"github.com/depscope/depscope/pkg/store"
)

// State is the builder's current phase, for status reporting.
type State string

const (
	StateIdle       State = "idle"
	StateScanning   State = "scanning"
	StateDiffing    State = "diffing"
	StateCommitting State = "committing"
)

// Builder drives sync runs against one store.
type Builder struct {
	store    *store.Store
	registry *scanner.Registry
	index    *checksum.Index
	workers  int

	// commitMu, when set, is held around each file commit so readers can
	// interleave between files but never observe a half-committed file.
	commitMu sync.Locker

	mu    sync.Mutex
	state State
}

// Options tunes a Builder.
type Options struct {
	// Workers caps concurrent file scans. Zero means GOMAXPROCS.
	Workers int
	// CommitLock is acquired around each per-file commit.
	CommitLock sync.Locker
}

func New(st *store.Store, reg *scanner.Registry, idx *checksum.Index, opts Options) *Builder {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		store:    st,
		registry: reg,
		index:    idx,
		workers:  workers,
		commitMu: opts.CommitLock,
		state:    StateIdle,
	}
}

// State returns the builder's current phase.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Builder) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// unit is one changed file moving through the pipeline.
type unit struct {
	input      model.FileInput
	change     model.ChangeKind
	prevDigest string
	scan       *scanner.FileScan
	scanErr    error
	created    []string
}

// Sync runs one reconciliation of the walked file set against the store.
// unreadable lists files the walker could not read; they keep their known
// state and are reported as scan failures. Cancellation is honored between
// file units, never inside a transaction. The returned report is valid even
// when err is non-nil; a ConsistencyError or cancellation aborts the run
// with whatever was committed so far.
func (b *Builder) Sync(ctx context.Context, files []model.FileInput, unreadable []model.FileError) (*model.SyncReport, error) {
	report := &model.SyncReport{
		RunID:   uuid.New().String(),
		Started: time.Now().UTC(),
	}
	defer func() {
		report.Finished = time.Now().UTC()
		b.setState(StateIdle)
	}()

	for _, fe := range unreadable {
		report.Errors = append(report.Errors, fe)
		report.FilesFailed++
	}

	// Classification. Unchanged files drop out here; unreadable files were
	// never recorded, so their previous digest stays authoritative.
	walked := make(map[string]bool, len(files)+len(unreadable))
	var units []*unit
	for _, f := range files {
		walked[f.Path] = true
		prev, _ := b.index.Previous(f.Path)
		kind := b.index.Record(f.Path, f.Digest)
		if kind == model.ChangeUnchanged {
			continue
		}
		units = append(units, &unit{input: f, change: kind, prevDigest: prev})
	}
	for _, fe := range unreadable {
		walked[fe.Path] = true
	}
	removed := b.index.Removed(walked)
	sort.Strings(removed)

	if len(units) == 0 && len(removed) == 0 {
		logging.Debug("Sync found no changes", "runID", report.RunID, "files", len(files))
		return report, nil
	}
	logging.Info("Sync started",
		"runID", report.RunID, "changed", len(units), "removed", len(removed))

	b.setState(StateScanning)
	b.scanAll(ctx, units)

	b.setState(StateDiffing)
	deltas, err := b.resolve(ctx, units, removed)
	if err != nil {
		b.rollbackIndex(units)
		return report, err
	}

	b.setState(StateCommitting)
	if err := b.commit(ctx, units, deltas, removed, report); err != nil {
		return report, err
	}

	if err := b.store.RecordRun(ctx, report); err != nil {
		logging.Warn("Failed to record sync run", "runID", report.RunID, "error", err)
	}
	logging.Info("Sync finished",
		"runID", report.RunID,
		"added", report.FilesAdded, "modified", report.FilesModified,
		"removed", report.FilesRemoved, "failed", report.FilesFailed)
	return report, nil
}

// scanAll parses every changed file. Scan failures are recorded on the unit;
// the file's previous digest is restored so the next run retries it.
func (b *Builder) scanAll(ctx context.Context, units []*unit) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, u := range units {
		u := u
		g.Go(func() error {
			if ctx.Err() != nil {
				u.scanErr = ctx.Err()
				return nil
			}
			sc, ok := b.registry.ForPath(u.input.Path)
			if !ok {
				u.scanErr = fmt.Errorf("no scanner for %s", u.input.Path)
				return nil
			}
			scan, err := sc.Scan(u.input.Path, u.input.Content)
			if err != nil {
				u.scanErr = err
				return nil
			}
			u.scan = scan
			return nil
		})
	}
	g.Wait()
}

// rollbackIndex undoes the digest updates of every unit so an aborted run
// leaves the index where it was.
func (b *Builder) rollbackIndex(units []*unit) {
	for _, u := range units {
		b.index.Restore(u.input.Path, u.prevDigest)
	}
}

func (b *Builder) commit(ctx context.Context, units []*unit, deltas map[string]store.FileDelta, removed []string, report *model.SyncReport) error {
	// Deterministic order: changed files by path, then removals by path.
	sort.Slice(units, func(i, j int) bool { return units[i].input.Path < units[j].input.Path })

	for _, u := range units {
		if err := ctx.Err(); err != nil {
			b.rollbackIndexFrom(units, u.input.Path)
			return err
		}
		if u.scanErr != nil {
			b.index.Restore(u.input.Path, u.prevDigest)
			report.FilesFailed++
			report.Errors = append(report.Errors, model.FileError{
				Path: u.input.Path, Stage: "scan", Err: u.scanErr.Error(),
			})
			logging.Warn("Scan failed", "path", u.input.Path, "error", u.scanErr)
			continue
		}

		delta := deltas[u.input.Path]
		if err := b.commitFile(ctx, delta); err != nil {
			b.index.Restore(u.input.Path, u.prevDigest)
			report.FilesFailed++
			report.Errors = append(report.Errors, model.FileError{
				Path: u.input.Path, Stage: "commit", Err: err.Error(),
			})
			logging.Warn("Commit failed", "path", u.input.Path, "error", err)
			continue
		}

		switch u.change {
		case model.ChangeAdded:
			report.FilesAdded++
		case model.ChangeModified:
			report.FilesModified++
		}
		report.CreatedSymbols = append(report.CreatedSymbols, u.created...)
		report.TombstonedSymbols = append(report.TombstonedSymbols, delta.Tombstones...)
	}

	for _, path := range removed {
		if err := ctx.Err(); err != nil {
			return err
		}
		gone, err := b.tombstone(ctx, path)
		if err != nil {
			report.FilesFailed++
			report.Errors = append(report.Errors, model.FileError{
				Path: path, Stage: "commit", Err: err.Error(),
			})
			logging.Warn("Tombstone failed", "path", path, "error", err)
			continue
		}
		b.index.Forget(path)
		report.FilesRemoved++
		report.TombstonedSymbols = append(report.TombstonedSymbols, gone...)
	}
	return nil
}

// rollbackIndexFrom restores digests for every unit at or after path in
// commit order, covering the files a cancellation left uncommitted.
func (b *Builder) rollbackIndexFrom(units []*unit, path string) {
	for _, u := range units {
		if u.input.Path >= path {
			b.index.Restore(u.input.Path, u.prevDigest)
		}
	}
}

// commitFile applies one delta under the commit lock, retrying a failed
// transaction once before giving up.
func (b *Builder) commitFile(ctx context.Context, delta store.FileDelta) error {
	err := b.applyLocked(ctx, delta)
	if err == nil {
		return nil
	}
	var cerr *model.ConsistencyError
	if errors.As(err, &cerr) {
		return err
	}
	logging.Debug("Retrying commit", "path", delta.File.Path, "error", err)
	if retryErr := b.applyLocked(ctx, delta); retryErr == nil {
		return nil
	}
	return &model.CommitError{Path: delta.File.Path, Err: err}
}

func (b *Builder) applyLocked(ctx context.Context, delta store.FileDelta) error {
	if b.commitMu != nil {
		b.commitMu.Lock()
		defer b.commitMu.Unlock()
	}
	return b.store.ApplyFileDelta(ctx, delta)
}

func (b *Builder) tombstone(ctx context.Context, path string) ([]string, error) {
	if b.commitMu != nil {
		b.commitMu.Lock()
		defer b.commitMu.Unlock()
	}
	gone, err := b.store.TombstoneFile(ctx, path)
	if err != nil {
		return nil, &model.CommitError{Path: path, Err: err}
	}
	return gone, nil
}
