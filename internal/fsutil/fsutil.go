// Package fsutil holds small filesystem helpers shared by the corpus
// reader, config writer and transcript recorder.
package fsutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ReadFileScoped reads a file by opening a root at the file's directory.
// This scopes access to the intended directory and avoids path traversal.
func ReadFileScoped(path string) ([]byte, error) {
	return ReadFilePrefix(path, -1)
}

// ReadFilePrefix reads at most limit bytes of a file, scoped like
// ReadFileScoped. A negative limit reads the whole file.
func ReadFilePrefix(path string, limit int64) ([]byte, error) {
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file path: %q", path)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()

	file, err := root.Open(base)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if limit < 0 {
		return io.ReadAll(file)
	}
	return io.ReadAll(io.LimitReader(file, limit))
}

// AtomicWriteFile writes data so readers see either the old file or the
// complete new one. Missing parent directories are created.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return atomicWriteFile(path, data, perm)
}

// PendingFile is written incrementally and replaces its target atomically
// on Commit. Until then readers see the previous file, or none.
type PendingFile struct {
	p pending
}

type pending interface {
	io.Writer
	commit() error
	cleanup() error
}

// CreatePending opens a pending file for path. Missing parent directories
// are created.
func CreatePending(path string, perm os.FileMode) (*PendingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	p, err := newPending(path, perm)
	if err != nil {
		return nil, err
	}
	return &PendingFile{p: p}, nil
}

// Write appends to the pending file.
func (f *PendingFile) Write(b []byte) (int, error) {
	return f.p.Write(b)
}

// Commit closes the pending file and moves it over the target.
func (f *PendingFile) Commit() error {
	return f.p.commit()
}

// Cleanup discards an uncommitted pending file. It is a no-op after Commit.
func (f *PendingFile) Cleanup() error {
	return f.p.cleanup()
}
