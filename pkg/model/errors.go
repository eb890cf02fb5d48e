package model

import "fmt"

// ScanError reports an unreadable or unparseable file. Non-fatal: it
// isolates to one file and is collected into the SyncReport. The file's
// previously known symbols must remain in the graph.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// CommitError reports a store-level transactional failure for one file.
// Non-fatal: the commit is retried once before being reported.
type CommitError struct {
	Path string
	Err  error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit %s: %v", e.Path, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }

// ConsistencyError reports an engine invariant violation: an edge references
// a symbol id that does not exist in the store. Fatal to the current sync
// run, since it indicates the delta logic itself is broken rather than a
// data problem.
type ConsistencyError struct {
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("graph consistency violated: %s", e.Detail)
}
