package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/depscope/depscope/pkg/model"
)

// FileDelta is the full set of graph mutations for one source file. The
// sync engine builds it off-store and ApplyFileDelta commits it atomically.
type FileDelta struct {
	File model.SourceFile
	// Symbols is the complete live symbol set for the file after this sync.
	Symbols []model.Symbol
	// Tombstones lists symbol ids that disappeared from the file.
	Tombstones []string
	// Edges is the complete outgoing edge set for the live symbols.
	Edges []model.Edge
}

// ApplyFileDelta commits one file's changes in a single transaction: the
// file row, symbol upserts and tombstones, and an upsert of the live
// symbols' outgoing edges. A re-observed edge keeps its row and accumulates
// its observation count; edges the scan no longer produced are pruned.
// Dangling inbound edges whose reference now names a live symbol are
// re-linked.
func (s *Store) ApplyFileDelta(ctx context.Context, delta FileDelta) error {
	return s.WithTx(func(tx *sql.Tx) error {
		fileID, err := upsertFile(ctx, tx, delta.File)
		if err != nil {
			return err
		}

		for _, id := range delta.Tombstones {
			if err := tombstoneSymbol(ctx, tx, id); err != nil {
				return err
			}
		}

		for _, sym := range delta.Symbols {
			sym.FileID = fileID
			if err := upsertSymbol(ctx, tx, sym); err != nil {
				return err
			}
		}

		fresh := make(map[string]map[string]bool, len(delta.Symbols))
		for _, e := range delta.Edges {
			keys := fresh[e.SourceID]
			if keys == nil {
				keys = make(map[string]bool)
				fresh[e.SourceID] = keys
			}
			keys[e.TargetRef+"\x00"+string(e.Kind)] = true
			if err := insertEdge(ctx, tx, e); err != nil {
				return err
			}
		}

		for _, sym := range delta.Symbols {
			if err := pruneEdges(ctx, tx, sym.ID, fresh[sym.ID]); err != nil {
				return err
			}
		}

		for _, sym := range delta.Symbols {
			if err := relinkInbound(ctx, tx, sym); err != nil {
				return err
			}
		}

		return recomputeLeaf(ctx, tx, fileID)
	})
}

// TombstoneFile marks a removed file and cascades: its symbols are
// tombstoned, their outgoing edges deleted, and inbound edges from other
// files are re-tagged external with their textual reference preserved.
// It returns the ids of the symbols tombstoned.
func (s *Store) TombstoneFile(ctx context.Context, path string) ([]string, error) {
	var tombstoned []string
	err := s.WithTx(func(tx *sql.Tx) error {
		var fileID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ? AND tombstoned = 0`, path).Scan(&fileID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("look up file %s: %w", path, err)
		}

		rows, err := tx.QueryContext(ctx, `SELECT id FROM symbols WHERE file_id = ? AND tombstoned = 0`, fileID)
		if err != nil {
			return fmt.Errorf("list symbols of %s: %w", path, err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			tombstoned = append(tombstoned, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE files SET tombstoned = 1 WHERE id = ?`, fileID); err != nil {
			return fmt.Errorf("tombstone file %s: %w", path, err)
		}
		for _, id := range tombstoned {
			if err := tombstoneSymbol(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tombstoned, nil
}

// RecordRun persists a sync run summary.
func (s *Store) RecordRun(ctx context.Context, r *model.SyncReport) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, started_at, finished_at, added, modified, removed, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Started, r.Finished, r.FilesAdded, r.FilesModified, r.FilesRemoved, r.FilesFailed)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	return nil
}

// Files returns all live source files.
func (s *Store) Files(ctx context.Context) ([]model.SourceFile, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, path, language, digest, synced_at, tombstoned
		FROM files WHERE tombstoned = 0 ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []model.SourceFile
	for rows.Next() {
		var f model.SourceFile
		if err := rows.Scan(&f.ID, &f.Path, &f.Language, &f.Digest, &f.SyncedAt, &f.Tombstoned); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetSymbol returns a symbol by id, including tombstoned ones.
func (s *Store) GetSymbol(ctx context.Context, id string) (model.Symbol, bool, error) {
	row := s.conn.QueryRowContext(ctx, symbolSelect+` WHERE id = ?`, id)
	sym, err := scanSymbol(row)
	if err == sql.ErrNoRows {
		return model.Symbol{}, false, nil
	}
	if err != nil {
		return model.Symbol{}, false, fmt.Errorf("get symbol %s: %w", id, err)
	}
	return sym, true, nil
}

// SymbolsIn returns the live symbols declared in one file.
func (s *Store) SymbolsIn(ctx context.Context, path string) ([]model.Symbol, error) {
	return s.querySymbols(ctx, symbolSelect+` WHERE path = ? AND tombstoned = 0 ORDER BY start_line, name`, path)
}

// LiveSymbols returns every live symbol across all files. The sync engine
// uses it to build the in-tree name index before resolving references.
func (s *Store) LiveSymbols(ctx context.Context) ([]model.Symbol, error) {
	return s.querySymbols(ctx, symbolSelect+` WHERE tombstoned = 0`)
}

// EdgesFrom returns the outgoing edges of one symbol.
func (s *Store) EdgesFrom(ctx context.Context, sourceID string) ([]model.Edge, error) {
	return s.queryEdges(ctx, edgeSelect+` WHERE source_id = ? ORDER BY target_ref`, sourceID)
}

// EdgesTo returns the inbound edges of one symbol.
func (s *Store) EdgesTo(ctx context.Context, targetID string) ([]model.Edge, error) {
	return s.queryEdges(ctx, edgeSelect+` WHERE target_id = ? ORDER BY source_id`, targetID)
}

// InternalEdges returns every edge whose source and target are both live
// in-tree symbols. This is the snapshot cycle detection runs over.
func (s *Store) InternalEdges(ctx context.Context) ([]model.Edge, error) {
	return s.queryEdges(ctx, edgeSelect+`
		WHERE target_id IS NOT NULL
		  AND source_id IN (SELECT id FROM symbols WHERE tombstoned = 0)
		  AND target_id IN (SELECT id FROM symbols WHERE tombstoned = 0)`)
}

const symbolSelect = `
	SELECT id, file_id, path, name, arity, kind, signature, start_line, end_line, leaf, tombstoned
	FROM symbols`

const edgeSelect = `
	SELECT source_id, COALESCE(target_id, ''), target_ref, kind, confidence, observations
	FROM edges`

func (s *Store) querySymbols(ctx context.Context, query string, args ...any) ([]model.Symbol, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []model.Symbol
	for rows.Next() {
		sym, err := scanSymbol(rows)
		if err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

func (s *Store) queryEdges(ctx context.Context, query string, args ...any) ([]model.Edge, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []model.Edge
	for rows.Next() {
		var e model.Edge
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.TargetRef, &e.Kind, &e.Confidence, &e.Observations); err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSymbol(row rowScanner) (model.Symbol, error) {
	var sym model.Symbol
	err := row.Scan(&sym.ID, &sym.FileID, &sym.Path, &sym.Name, &sym.Arity, &sym.Kind,
		&sym.Signature, &sym.StartLine, &sym.EndLine, &sym.Leaf, &sym.Tombstoned)
	return sym, err
}

func upsertFile(ctx context.Context, tx *sql.Tx, f model.SourceFile) (int64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO files (path, language, digest, synced_at, tombstoned)
		VALUES (?, ?, ?, ?, 0)
		ON CONFLICT(path) DO UPDATE SET
			language = excluded.language,
			digest = excluded.digest,
			synced_at = excluded.synced_at,
			tombstoned = 0`,
		f.Path, f.Language, f.Digest, f.SyncedAt)
	if err != nil {
		return 0, fmt.Errorf("upsert file %s: %w", f.Path, err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, f.Path).Scan(&id); err != nil {
		return 0, fmt.Errorf("read back file id for %s: %w", f.Path, err)
	}
	return id, nil
}

func upsertSymbol(ctx context.Context, tx *sql.Tx, sym model.Symbol) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO symbols (id, file_id, path, name, arity, kind, signature, start_line, end_line, leaf, tombstoned)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0)
		ON CONFLICT(id) DO UPDATE SET
			file_id = excluded.file_id,
			signature = excluded.signature,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			tombstoned = 0`,
		sym.ID, sym.FileID, sym.Path, sym.Name, sym.Arity, sym.Kind,
		sym.Signature, sym.StartLine, sym.EndLine)
	if err != nil {
		return fmt.Errorf("upsert symbol %s: %w", sym.ID, err)
	}
	return nil
}

// tombstoneSymbol cascades one symbol's disappearance: outgoing edges are
// deleted, inbound edges lose their target and fall back to external while
// keeping the textual reference. Sources of detached edges may have lost
// their last resolved edge, so their leaf flag is refreshed.
func tombstoneSymbol(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `UPDATE symbols SET tombstoned = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("tombstone symbol %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete edges of %s: %w", id, err)
	}

	sources, err := querySourceIDs(ctx, tx, id)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE edges SET target_id = NULL, confidence = ?
		WHERE target_id = ?`, model.ConfidenceExternal, id); err != nil {
		return fmt.Errorf("detach inbound edges of %s: %w", id, err)
	}
	return refreshLeaf(ctx, tx, sources)
}

// querySourceIDs lists the distinct sources of a symbol's inbound edges.
func querySourceIDs(ctx context.Context, tx *sql.Tx, targetID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT DISTINCT source_id FROM edges WHERE target_id = ?`, targetID)
	if err != nil {
		return nil, fmt.Errorf("list sources of %s: %w", targetID, err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		sources = append(sources, id)
	}
	return sources, rows.Err()
}

// refreshLeaf recomputes the leaf flag for the given symbols.
func refreshLeaf(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		_, err := tx.ExecContext(ctx, `
			UPDATE symbols SET leaf = NOT EXISTS (
				SELECT 1 FROM edges
				WHERE edges.source_id = symbols.id
				  AND edges.kind != ?
				  AND edges.confidence = ?
			) WHERE id = ?`, model.RelationImport, model.ConfidenceResolved, id)
		if err != nil {
			return fmt.Errorf("refresh leaf flag of %s: %w", id, err)
		}
	}
	return nil
}

// insertEdge upserts one edge. Re-observing a (source, ref, kind) tuple,
// within one scan or across syncs, increments the stored count; the target
// resolution and confidence follow the fresh scan.
func insertEdge(ctx context.Context, tx *sql.Tx, e model.Edge) error {
	var targetID any
	if e.TargetID != "" {
		targetID = e.TargetID
	}
	obs := e.Observations
	if obs < 1 {
		obs = 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, target_ref, kind, confidence, observations)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_ref, kind) DO UPDATE SET
			observations = observations + excluded.observations,
			target_id = excluded.target_id,
			confidence = excluded.confidence`,
		e.SourceID, targetID, e.TargetRef, e.Kind, e.Confidence, obs)
	if err != nil {
		return fmt.Errorf("insert edge %s -> %s: %w", e.SourceID, e.TargetRef, err)
	}
	return nil
}

// pruneEdges deletes a symbol's stored edges that the fresh scan no longer
// produced. Surviving rows were upserted in place, so their observation
// count carries across syncs.
func pruneEdges(ctx context.Context, tx *sql.Tx, sourceID string, keep map[string]bool) error {
	rows, err := tx.QueryContext(ctx, `SELECT target_ref, kind FROM edges WHERE source_id = ?`, sourceID)
	if err != nil {
		return fmt.Errorf("list edges of %s: %w", sourceID, err)
	}
	type edgeID struct{ ref, kind string }
	var stale []edgeID
	for rows.Next() {
		var e edgeID
		if err := rows.Scan(&e.ref, &e.kind); err != nil {
			rows.Close()
			return err
		}
		if !keep[e.ref+"\x00"+e.kind] {
			stale = append(stale, e)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range stale {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM edges WHERE source_id = ? AND target_ref = ? AND kind = ?`,
			sourceID, e.ref, e.kind); err != nil {
			return fmt.Errorf("prune edge %s -> %s: %w", sourceID, e.ref, err)
		}
	}
	return nil
}

// relinkInbound reattaches dangling external edges whose reference names a
// symbol that just (re)appeared. A removed-then-restored file thereby gets
// its inbound edges back without touching the referencing files. The edge
// comes back as resolved even if it was conditional before the tombstone;
// the exact class is re-derived the next time the referencing file is
// scanned. Sources of relinked edges regain a resolved edge, so their leaf
// flag is refreshed.
func relinkInbound(ctx context.Context, tx *sql.Tx, sym model.Symbol) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE edges SET target_id = ?, confidence = ?
		WHERE target_id IS NULL AND confidence = ? AND target_ref = ?`,
		sym.ID, model.ConfidenceResolved, model.ConfidenceExternal, sym.Name)
	if err != nil {
		return fmt.Errorf("relink inbound edges of %s: %w", sym.Name, err)
	}
	sources, err := querySourceIDs(ctx, tx, sym.ID)
	if err != nil {
		return err
	}
	return refreshLeaf(ctx, tx, sources)
}

// recomputeLeaf refreshes the leaf flag for all symbols of one file. A
// symbol is a leaf when it has no outgoing resolved call or compose edges;
// external, conditional and dynamic references do not disqualify it.
func recomputeLeaf(ctx context.Context, tx *sql.Tx, fileID int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE symbols SET leaf = NOT EXISTS (
			SELECT 1 FROM edges
			WHERE edges.source_id = symbols.id
			  AND edges.kind != ?
			  AND edges.confidence = ?
		) WHERE file_id = ?`, model.RelationImport, model.ConfidenceResolved, fileID)
	if err != nil {
		return fmt.Errorf("recompute leaf flags: %w", err)
	}
	return nil
}
