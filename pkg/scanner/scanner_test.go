package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depscope/depscope/pkg/model"
)

const goSample = `package sample

import (
	"fmt"
	"strings"
)

func Top(a, b int) int {
	return Helper(a) + Helper(b)
}

func Helper(n int) int {
	if n > 10 {
		return Clamp(n)
	}
	return n
}

func Clamp(n int) int {
	fmt.Println(strings.Repeat("x", n))
	return 10
}

func Dispatch(name string, table map[string]func()) {
	table[name]()
}

func Apply(xs []int) {
	walkAll(xs, Clamp)
}
`

func scanGo(t *testing.T, src string) *FileScan {
	t.Helper()
	s := NewGoScanner()
	scan, err := s.Scan("sample.go", []byte(src))
	require.NoError(t, err)
	return scan
}

func edgesFrom(scan *FileScan, name string, kind model.RelationKind) []EdgeDraft {
	var out []EdgeDraft
	for _, e := range scan.Edges {
		if e.FromName == name && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestGoScan_Symbols(t *testing.T) {
	scan := scanGo(t, goSample)

	names := map[string]SymbolDraft{}
	for _, sym := range scan.Symbols {
		names[sym.Name] = sym
	}

	// One module symbol plus the five functions.
	require.Len(t, scan.Symbols, 6)
	assert.Equal(t, model.SymbolModule, names["sample"].Kind)
	assert.Equal(t, 2, names["Top"].Arity)
	assert.Equal(t, 1, names["Helper"].Arity)
	assert.Equal(t, model.SymbolFunction, names["Clamp"].Kind)
	assert.Contains(t, names["Top"].Signature, "func Top(a, b int) int")
	assert.Greater(t, names["Helper"].EndLine, names["Helper"].StartLine)
}

func TestGoScan_PlainCallHint(t *testing.T) {
	scan := scanGo(t, goSample)

	calls := edgesFrom(scan, "Top", model.RelationCall)
	require.Len(t, calls, 2)
	for _, e := range calls {
		assert.Equal(t, "Helper", e.TargetRef)
		assert.Equal(t, HintLexical, e.Hint)
		assert.Equal(t, 1, e.ArgCount)
	}
}

func TestGoScan_ConditionalHint(t *testing.T) {
	scan := scanGo(t, goSample)

	calls := edgesFrom(scan, "Helper", model.RelationCall)
	require.Len(t, calls, 1)
	assert.Equal(t, "Clamp", calls[0].TargetRef)
	assert.Equal(t, HintConditional, calls[0].Hint)
}

func TestGoScan_DynamicDispatchHint(t *testing.T) {
	scan := scanGo(t, goSample)

	calls := edgesFrom(scan, "Dispatch", model.RelationCall)
	require.Len(t, calls, 1)
	assert.Equal(t, HintDynamic, calls[0].Hint)
}

func TestGoScan_ComposeReference(t *testing.T) {
	scan := scanGo(t, goSample)

	compose := edgesFrom(scan, "Apply", model.RelationCompose)
	require.Len(t, compose, 2) // xs and Clamp; resolution filters later
	refs := []string{compose[0].TargetRef, compose[1].TargetRef}
	assert.Contains(t, refs, "Clamp")
}

func TestGoScan_Imports(t *testing.T) {
	scan := scanGo(t, goSample)

	imports := edgesFrom(scan, "sample", model.RelationImport)
	require.Len(t, imports, 2)
	refs := []string{imports[0].TargetRef, imports[1].TargetRef}
	assert.ElementsMatch(t, []string{"fmt", "strings"}, refs)
}

func TestGoScan_SelectorCall(t *testing.T) {
	scan := scanGo(t, goSample)

	calls := edgesFrom(scan, "Clamp", model.RelationCall)
	require.Len(t, calls, 2)
	refs := map[string]bool{}
	for _, e := range calls {
		refs[e.TargetRef] = true
	}
	assert.True(t, refs["fmt.Println"])
	assert.True(t, refs["strings.Repeat"])
}

func TestGoScan_SyntaxError(t *testing.T) {
	s := NewGoScanner()
	scan, err := s.Scan("broken.go", []byte("package x\nfunc oops( {"))
	assert.Error(t, err)
	assert.Nil(t, scan)
}

const pySample = `import os
from collections import defaultdict

def top(a, b):
    return helper(a) + helper(b)

def helper(n):
    if n > 10:
        return clamp(n)
    return n

def clamp(n):
    return min(n, 10)

def dispatch(name):
    handlers[name]()

def lookup(obj, name):
    return getattr(obj, name)()
`

func scanPy(t *testing.T, src string) *FileScan {
	t.Helper()
	s := NewPythonScanner()
	scan, err := s.Scan("sample.py", []byte(src))
	require.NoError(t, err)
	return scan
}

func TestPythonScan_Symbols(t *testing.T) {
	scan := scanPy(t, pySample)

	names := map[string]SymbolDraft{}
	for _, sym := range scan.Symbols {
		names[sym.Name] = sym
	}

	require.Len(t, scan.Symbols, 6)
	assert.Equal(t, model.SymbolModule, names["sample"].Kind)
	assert.Equal(t, 2, names["top"].Arity)
	assert.Equal(t, 1, names["helper"].Arity)
}

func TestPythonScan_Hints(t *testing.T) {
	scan := scanPy(t, pySample)

	cond := edgesFrom(scan, "helper", model.RelationCall)
	require.NotEmpty(t, cond)
	assert.Equal(t, "clamp", cond[0].TargetRef)
	assert.Equal(t, HintConditional, cond[0].Hint)

	dyn := edgesFrom(scan, "dispatch", model.RelationCall)
	require.Len(t, dyn, 1)
	assert.Equal(t, HintDynamic, dyn[0].Hint)

	lookup := edgesFrom(scan, "lookup", model.RelationCall)
	require.NotEmpty(t, lookup)
	assert.Equal(t, HintDynamic, lookup[0].Hint)
}

func TestPythonScan_Imports(t *testing.T) {
	scan := scanPy(t, pySample)

	imports := edgesFrom(scan, "sample", model.RelationImport)
	refs := make([]string, 0, len(imports))
	for _, e := range imports {
		refs = append(refs, e.TargetRef)
	}
	assert.ElementsMatch(t, []string{"os", "collections"}, refs)
}

func TestRegistry_ForPath(t *testing.T) {
	r := DefaultRegistry()

	s, ok := r.ForPath("pkg/thing.go")
	require.True(t, ok)
	assert.Equal(t, "go", s.Language())

	s, ok = r.ForPath("scripts/run.py")
	require.True(t, ok)
	assert.Equal(t, "python", s.Language())

	_, ok = r.ForPath("README.md")
	assert.False(t, ok)
}
