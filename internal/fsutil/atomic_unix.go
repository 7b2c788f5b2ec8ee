//go:build !windows

package fsutil

import (
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}

type renamePending struct {
	*renameio.PendingFile
}

func newPending(path string, perm os.FileMode) (pending, error) {
	f, err := renameio.TempFile(filepath.Dir(path), path)
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(perm); err != nil {
		_ = f.Cleanup()
		return nil, err
	}
	return renamePending{f}, nil
}

func (p renamePending) commit() error  { return p.CloseAtomicallyReplace() }
func (p renamePending) cleanup() error { return p.Cleanup() }
