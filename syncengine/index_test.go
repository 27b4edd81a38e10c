package syncengine

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestBuildIndexFindsFilesAndDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "hello")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "world")

	idx, err := BuildIndex(DefaultConfig(root))
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}

	a, ok := idx["a.txt"]
	if !ok || a.Kind != EntryFile || a.Size != 5 {
		t.Fatalf("expected a.txt to be indexed as a 5-byte file, got %+v ok=%v", a, ok)
	}
	sub, ok := idx["sub"]
	if !ok || sub.Kind != EntryDirectory {
		t.Fatalf("expected sub to be indexed as a directory, got %+v ok=%v", sub, ok)
	}
	b, ok := idx["sub/b.txt"]
	if !ok || b.Kind != EntryFile {
		t.Fatalf("expected sub/b.txt to be indexed with forward-slash path, got %+v ok=%v", b, ok)
	}
}

func TestBuildIndexSkipsExcludedPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "keep.txt"), "data")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	writeFile(t, filepath.Join(root, "scratch.tmp"), "ignored")

	idx, err := BuildIndex(DefaultConfig(root))
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if _, ok := idx["keep.txt"]; !ok {
		t.Fatalf("expected keep.txt to be indexed")
	}
	if _, ok := idx[".git"]; ok {
		t.Fatalf("expected .git to be excluded")
	}
	if _, ok := idx[".git/HEAD"]; ok {
		t.Fatalf("expected .git contents to be excluded via SkipDir")
	}
	if _, ok := idx["scratch.tmp"]; ok {
		t.Fatalf("expected *.tmp glob to exclude scratch.tmp")
	}
}

func TestBuildIndexRespectsMaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "big.bin"), "0123456789")

	cfg := DefaultConfig(root)
	cfg.MaxFileSize = 5
	idx, err := BuildIndex(cfg)
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if _, ok := idx["big.bin"]; ok {
		t.Fatalf("expected file over max_file_size to be skipped")
	}
}

func TestBuildIndexSameContentSameHash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.txt"), "identical content")
	writeFile(t, filepath.Join(root, "two.txt"), "identical content")

	idx, err := BuildIndex(DefaultConfig(root))
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if idx["one.txt"].ContentHash != idx["two.txt"].ContentHash {
		t.Fatalf("expected identical content to hash identically")
	}
}

func TestIsExcludedMatchesGlobAndExactSegment(t *testing.T) {
	patterns := []string{".git", "*.tmp"}
	cases := map[string]bool{
		".git":            true,
		"nested/.git":     true,
		"file.tmp":        true,
		"deep/file.tmp":   true,
		"keep.txt":        false,
		"deep/keep.txt":   false,
	}
	for path, want := range cases {
		if got := isExcluded(path, patterns); got != want {
			t.Fatalf("isExcluded(%q) = %v, want %v", path, got, want)
		}
	}
}
