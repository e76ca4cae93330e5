// Package atomicfile replaces files via a temp file in the same directory followed by a
// rename, so readers observe either the previous content or the new content in full.
package atomicfile

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultPerm is applied to written files when Writer.Perm is zero.
const DefaultPerm os.FileMode = 0o644

// TempMarker is part of every temp file name, so listings can skip leftovers.
const TempMarker = ".tmp-"

// Writer performs atomic file replacement.
type Writer struct {
	Perm os.FileMode
	// BeforeRename runs after the temp file is synced and closed. A non-nil error aborts
	// the write and leaves the temp file behind, as a crash at that point would.
	BeforeRename func(tmpPath string) error
}

// WriteFile atomically replaces path with data using DefaultPerm.
func WriteFile(path string, data []byte) error {
	return (&Writer{}).WriteFile(path, data)
}

// WriteFile atomically replaces path with data.
func (w *Writer) WriteFile(path string, data []byte) error {
	perm := DefaultPerm
	if w != nil && w.Perm != 0 {
		perm = w.Perm
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+TempMarker+"*")
	if err != nil {
		return eris.Wrapf(err, "create temp file for %s", path)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return eris.Wrapf(err, "write temp file for %s", path)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return eris.Wrapf(err, "chmod temp file for %s", path)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return eris.Wrapf(err, "sync temp file for %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return eris.Wrapf(err, "close temp file for %s", path)
	}

	if w != nil && w.BeforeRename != nil {
		if err := w.BeforeRename(tmpPath); err != nil {
			return eris.Wrapf(err, "replace %s", path)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return eris.Wrapf(err, "rename temp file for %s", path)
	}
	return nil
}

// CopyFile atomically copies src to dst, preserving nothing but the content.
func (w *Writer) CopyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return eris.Wrapf(err, "read %s", src)
	}
	return w.WriteFile(dst, data)
}

// IsTemp reports whether name looks like a temp file left by WriteFile.
func IsTemp(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, TempMarker)
}
