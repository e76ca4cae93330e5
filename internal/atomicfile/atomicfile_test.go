package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileReplacesContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "articles-db.js")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	if err := WriteFile(path, []byte("new")); err != nil {
		t.Fatalf("WriteFile returned error: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("expected new content, got %q", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat returned error: %v", err)
	}
	if info.Mode().Perm() != DefaultPerm {
		t.Fatalf("expected mode %v, got %v", DefaultPerm, info.Mode().Perm())
	}
	assertNoTempFiles(t, filepath.Dir(path))
}

func TestWriteFileCrashBeforeRenameKeepsPrevious(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "ART001-en.html")
	if err := os.WriteFile(path, []byte("previous"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	crash := errors.New("simulated crash")
	var leftover string
	w := &Writer{BeforeRename: func(tmpPath string) error {
		leftover = tmpPath
		return crash
	}}

	if err := w.WriteFile(path, []byte("replacement")); !errors.Is(err, crash) {
		t.Fatalf("expected simulated crash error, got %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile returned error: %v", err)
	}
	if string(got) != "previous" {
		t.Fatalf("expected previous content to survive, got %q", got)
	}
	if !IsTemp(filepath.Base(leftover)) {
		t.Fatalf("expected %q to be recognised as a temp file", leftover)
	}
	if _, err := os.Stat(leftover); err != nil {
		t.Fatalf("expected temp file to remain after crash: %v", err)
	}
}

func TestWriteFileMissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "missing", "file.html")
	if err := WriteFile(path, []byte("x")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestCopyFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.js")
	dst := filepath.Join(dir, "dst.js")
	if err := os.WriteFile(src, []byte("registry"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	if err := (&Writer{Perm: 0o600}).CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile returned error: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil || string(got) != "registry" {
		t.Fatalf("expected copied content, got %q (err=%v)", got, err)
	}
}

func TestIsTemp(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		".ART001-en.html.tmp-123": true,
		"ART001-en.html":          false,
		".hidden":                 false,
	}
	for name, want := range cases {
		if got := IsTemp(name); got != want {
			t.Fatalf("IsTemp(%q) = %v, want %v", name, got, want)
		}
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir returned error: %v", err)
	}
	for _, entry := range entries {
		if IsTemp(entry.Name()) {
			t.Fatalf("unexpected temp file %s", entry.Name())
		}
	}
}
