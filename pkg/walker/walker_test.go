package walker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/depscope/depscope/pkg/scanner"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalk(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")
	writeFile(t, root, "sub/b.py", "x = 1\n")
	writeFile(t, root, "README.md", "docs\n")
	writeFile(t, root, ".git/config", "ignored\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")

	w := New(root, scanner.DefaultRegistry(), nil)
	files, failures, err := w.Walk(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}

	got := make(map[string]string)
	for _, f := range files {
		got[f.Path] = f.Language
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 files, got %v", got)
	}
	if got["a.go"] != "go" {
		t.Errorf("a.go language: %q", got["a.go"])
	}
	if got["sub/b.py"] != "python" {
		t.Errorf("sub/b.py language: %q", got["sub/b.py"])
	}

	for _, f := range files {
		if len(f.Digest) != 64 {
			t.Errorf("%s: digest %q is not sha256 hex", f.Path, f.Digest)
		}
		if len(f.Content) == 0 {
			t.Errorf("%s: content not read", f.Path)
		}
	}
}

func TestWalk_ExtraExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.go", "package keep\n")
	writeFile(t, root, "generated/out.go", "package out\n")

	w := New(root, scanner.DefaultRegistry(), []string{"generated"})
	files, _, err := w.Walk(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Path != "keep.go" {
		t.Fatalf("exclusion not honored: %v", files)
	}
}

func TestWalk_Cancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := New(root, scanner.DefaultRegistry(), nil)
	if _, _, err := w.Walk(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
}
