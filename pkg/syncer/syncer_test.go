package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscope/depscope/pkg/checksum"
	"github.com/depscope/depscope/pkg/model"
	"github.com/depscope/depscope/pkg/scanner"
	"github.com/depscope/depscope/pkg/store"
)

const libSrc = `package lib

func Work(n int) int {
	return n * 2
}
`

const appSrc = `package app

func Main() {
	Work(1)
}
`

func input(path, src string) model.FileInput {
	sum := sha256.Sum256([]byte(src))
	return model.FileInput{
		Path:     path,
		Language: "go",
		Content:  []byte(src),
		Digest:   hex.EncodeToString(sum[:]),
	}
}

type harness struct {
	store   *store.Store
	index   *checksum.Index
	builder *Builder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	idx := checksum.NewIndex(nil)
	return &harness{
		store:   st,
		index:   idx,
		builder: New(st, scanner.DefaultRegistry(), idx, Options{Workers: 2}),
	}
}

func (h *harness) sync(t *testing.T, files ...model.FileInput) *model.SyncReport {
	t.Helper()
	report, err := h.builder.Sync(context.Background(), files, nil)
	require.NoError(t, err)
	return report
}

func (h *harness) symbol(t *testing.T, path, name string, arity int) model.Symbol {
	t.Helper()
	sym, ok, err := h.store.GetSymbol(context.Background(), model.SymbolID(path, name, arity))
	require.NoError(t, err)
	require.True(t, ok, "symbol %s in %s not found", name, path)
	return sym
}

func TestSync_AddsFiles(t *testing.T) {
	h := newHarness(t)

	report := h.sync(t, input("lib.go", libSrc), input("app.go", appSrc))
	assert.Equal(t, 2, report.FilesAdded)
	assert.Equal(t, 0, report.FilesFailed)
	assert.True(t, report.Changed())
	assert.NotEmpty(t, report.RunID)
	assert.Len(t, report.CreatedSymbols, 4) // two modules, two functions

	// The cross-file call resolves even though both files arrived in the
	// same run.
	caller := h.symbol(t, "app.go", "Main", 0)
	edges, err := h.store.EdgesFrom(context.Background(), caller.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.SymbolID("lib.go", "Work", 1), edges[0].TargetID)
	assert.Equal(t, model.ConfidenceResolved, edges[0].Confidence)
}

func TestSync_Idempotent(t *testing.T) {
	h := newHarness(t)
	files := []model.FileInput{input("lib.go", libSrc), input("app.go", appSrc)}

	first, err := h.builder.Sync(context.Background(), files, nil)
	require.NoError(t, err)
	require.True(t, first.Changed())

	second, err := h.builder.Sync(context.Background(), files, nil)
	require.NoError(t, err)
	assert.False(t, second.Changed())
	assert.Empty(t, second.Errors)
	assert.Empty(t, second.CreatedSymbols)
}

func TestSync_ModifiedFile(t *testing.T) {
	h := newHarness(t)
	h.sync(t, input("lib.go", libSrc))

	changed := `package lib

func Work(n int) int {
	return n * 3
}
`
	report := h.sync(t, input("lib.go", changed))
	assert.Equal(t, 1, report.FilesModified)
	assert.Equal(t, 0, report.FilesAdded)
	// Same identity, so nothing was created or tombstoned.
	assert.Empty(t, report.CreatedSymbols)
	assert.Empty(t, report.TombstonedSymbols)
}

func TestSync_ModifiedFileAccumulatesObservations(t *testing.T) {
	h := newHarness(t)
	h.sync(t, input("lib.go", libSrc), input("app.go", appSrc))

	// app.go changes but still makes the same call: the re-scan reconfirms
	// the edge, so its observation count grows instead of resetting.
	changed := `package app

func Main() {
	Work(2)
}
`
	report := h.sync(t, input("lib.go", libSrc), input("app.go", changed))
	assert.Equal(t, 1, report.FilesModified)

	caller := h.symbol(t, "app.go", "Main", 0)
	edges, err := h.store.EdgesFrom(context.Background(), caller.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.SymbolID("lib.go", "Work", 1), edges[0].TargetID)
	assert.Equal(t, 2, edges[0].Observations)
}

func TestSync_RenameIsDeleteThenAdd(t *testing.T) {
	h := newHarness(t)
	h.sync(t, input("lib.go", libSrc))

	renamed := `package lib

func WorkHarder(n int) int {
	return n * 2
}
`
	report := h.sync(t, input("lib.go", renamed))
	assert.Contains(t, report.CreatedSymbols, model.SymbolID("lib.go", "WorkHarder", 1))
	assert.Contains(t, report.TombstonedSymbols, model.SymbolID("lib.go", "Work", 1))

	old, ok, err := h.store.GetSymbol(context.Background(), model.SymbolID("lib.go", "Work", 1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, old.Tombstoned)
}

func TestSync_RemovedFileRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.sync(t, input("lib.go", libSrc), input("app.go", appSrc))
	caller := h.symbol(t, "app.go", "Main", 0)

	// Walk without lib.go: it is tombstoned and the inbound edge degrades
	// to external, keeping the written reference.
	report := h.sync(t, input("app.go", appSrc))
	assert.Equal(t, 1, report.FilesRemoved)
	assert.Contains(t, report.TombstonedSymbols, model.SymbolID("lib.go", "Work", 1))

	edges, err := h.store.EdgesFrom(context.Background(), caller.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "", edges[0].TargetID)
	assert.Equal(t, "Work", edges[0].TargetRef)
	assert.Equal(t, model.ConfidenceExternal, edges[0].Confidence)

	// Restoring the file brings the edge back without app.go changing.
	report = h.sync(t, input("lib.go", libSrc), input("app.go", appSrc))
	assert.Equal(t, 1, report.FilesAdded)

	edges, err = h.store.EdgesFrom(context.Background(), caller.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.SymbolID("lib.go", "Work", 1), edges[0].TargetID)
	assert.Equal(t, model.ConfidenceResolved, edges[0].Confidence)
}

func TestSync_ScanFailureIsolated(t *testing.T) {
	h := newHarness(t)

	broken := "package lib\n\nfunc oops( {\n"
	report := h.sync(t, input("ok.go", libSrc), input("broken.go", broken))

	assert.Equal(t, 1, report.FilesAdded)
	assert.Equal(t, 1, report.FilesFailed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "broken.go", report.Errors[0].Path)
	assert.Equal(t, "scan", report.Errors[0].Stage)

	// The good file committed despite its neighbor failing.
	h.symbol(t, "ok.go", "Work", 1)

	// The failed file was not recorded, so fixing it registers as an add.
	fixed := h.sync(t, input("ok.go", libSrc), input("broken.go", libSrc))
	assert.Equal(t, 1, fixed.FilesAdded)
}

func TestSync_UnreadableFileKeepsState(t *testing.T) {
	h := newHarness(t)
	h.sync(t, input("lib.go", libSrc))

	// The walker could not read lib.go this time. It must not be treated
	// as removed, and the failure is surfaced.
	report, err := h.builder.Sync(context.Background(), nil, []model.FileError{
		{Path: "lib.go", Stage: "scan", Err: "permission denied"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, report.FilesRemoved)
	assert.Equal(t, 1, report.FilesFailed)

	sym := h.symbol(t, "lib.go", "Work", 1)
	assert.False(t, sym.Tombstoned)
}

func TestSync_ConditionalAndExternalConfidence(t *testing.T) {
	h := newHarness(t)

	src := `package lib

import "fmt"

func Guard(n int) {
	if n > 0 {
		Work(n)
	}
	fmt.Println(n)
}

func Work(n int) int {
	return n
}
`
	h.sync(t, input("lib.go", src))

	guard := h.symbol(t, "lib.go", "Guard", 1)
	edges, err := h.store.EdgesFrom(context.Background(), guard.ID)
	require.NoError(t, err)

	byRef := map[string]model.Edge{}
	for _, e := range edges {
		byRef[e.TargetRef] = e
	}
	require.Contains(t, byRef, "Work")
	assert.Equal(t, model.ConfidenceConditional, byRef["Work"].Confidence)
	assert.Equal(t, model.SymbolID("lib.go", "Work", 1), byRef["Work"].TargetID)

	require.Contains(t, byRef, "fmt.Println")
	assert.Equal(t, model.ConfidenceExternal, byRef["fmt.Println"].Confidence)
	assert.Equal(t, "", byRef["fmt.Println"].TargetID)
}

func TestSync_StateReturnsToIdle(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, StateIdle, h.builder.State())
	h.sync(t, input("lib.go", libSrc))
	assert.Equal(t, StateIdle, h.builder.State())
}
