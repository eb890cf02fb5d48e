package store

import "fmt"

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	path       TEXT NOT NULL UNIQUE,
	language   TEXT NOT NULL,
	digest     TEXT NOT NULL,
	synced_at  TIMESTAMP NOT NULL,
	tombstoned INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS symbols (
	id         TEXT PRIMARY KEY,
	file_id    INTEGER NOT NULL REFERENCES files(id),
	path       TEXT NOT NULL,
	name       TEXT NOT NULL,
	arity      INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	signature  TEXT NOT NULL DEFAULT '',
	start_line INTEGER NOT NULL DEFAULT 0,
	end_line   INTEGER NOT NULL DEFAULT 0,
	leaf       INTEGER NOT NULL DEFAULT 1,
	tombstoned INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name) WHERE tombstoned = 0;

CREATE TABLE IF NOT EXISTS edges (
	source_id    TEXT NOT NULL REFERENCES symbols(id),
	target_id    TEXT,
	target_ref   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	confidence   TEXT NOT NULL,
	observations INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (source_id, target_ref, kind)
);

CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id) WHERE target_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_edges_ref ON edges(target_ref) WHERE target_id IS NULL;

CREATE TABLE IF NOT EXISTS sync_runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	added       INTEGER NOT NULL,
	modified    INTEGER NOT NULL,
	removed     INTEGER NOT NULL,
	failed      INTEGER NOT NULL
);
`

func (s *Store) initSchema() error {
	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	return nil
}
