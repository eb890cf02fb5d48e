package checksum

import (
	"sort"
	"testing"
	"time"

	"github.com/depscope/depscope/pkg/model"
)

func seededIndex() *Index {
	return NewIndex([]model.SourceFile{
		{Path: "a.go", Digest: "d-a", Language: "go", SyncedAt: time.Now()},
		{Path: "b.go", Digest: "d-b", Language: "go", SyncedAt: time.Now()},
	})
}

func TestRecord_Added(t *testing.T) {
	ix := seededIndex()

	if kind := ix.Record("c.go", "d-c"); kind != model.ChangeAdded {
		t.Errorf("expected added, got %v", kind)
	}

	// A second observation with the same digest is unchanged.
	if kind := ix.Record("c.go", "d-c"); kind != model.ChangeUnchanged {
		t.Errorf("expected unchanged after add, got %v", kind)
	}
}

func TestRecord_UnchangedAndModified(t *testing.T) {
	ix := seededIndex()

	if kind := ix.Record("a.go", "d-a"); kind != model.ChangeUnchanged {
		t.Errorf("expected unchanged, got %v", kind)
	}
	if kind := ix.Record("a.go", "d-a2"); kind != model.ChangeModified {
		t.Errorf("expected modified, got %v", kind)
	}
	if kind := ix.Record("a.go", "d-a2"); kind != model.ChangeUnchanged {
		t.Errorf("expected unchanged after update, got %v", kind)
	}
}

func TestRemoved(t *testing.T) {
	ix := seededIndex()

	walked := map[string]bool{"a.go": true}
	removed := ix.Removed(walked)
	if len(removed) != 1 || removed[0] != "b.go" {
		t.Errorf("expected [b.go], got %v", removed)
	}

	// The entry survives until the tombstone is confirmed.
	if _, ok := ix.Previous("b.go"); !ok {
		t.Error("removed path dropped before Forget")
	}
	ix.Forget("b.go")
	if _, ok := ix.Previous("b.go"); ok {
		t.Error("path still present after Forget")
	}
}

func TestRestore_FailedScan(t *testing.T) {
	ix := seededIndex()

	// The run observes a modification, then the scan fails: the previous
	// digest must come back so the next run retries the file.
	if kind := ix.Record("a.go", "d-a2"); kind != model.ChangeModified {
		t.Fatalf("expected modified, got %v", kind)
	}
	ix.Restore("a.go", "d-a")

	if kind := ix.Record("a.go", "d-a2"); kind != model.ChangeModified {
		t.Errorf("expected modified again after restore, got %v", kind)
	}
}

func TestRestore_FailedAdd(t *testing.T) {
	ix := seededIndex()

	ix.Record("new.go", "d-n")
	ix.Restore("new.go", "")

	if kind := ix.Record("new.go", "d-n"); kind != model.ChangeAdded {
		t.Errorf("expected added again after restore, got %v", kind)
	}
}

func TestRemoved_Deterministic(t *testing.T) {
	ix := NewIndex([]model.SourceFile{
		{Path: "x.go", Digest: "1"},
		{Path: "y.go", Digest: "2"},
		{Path: "z.go", Digest: "3"},
	})

	removed := ix.Removed(map[string]bool{})
	sort.Strings(removed)
	want := []string{"x.go", "y.go", "z.go"}
	for i, p := range want {
		if removed[i] != p {
			t.Fatalf("expected %v, got %v", want, removed)
		}
	}
}
