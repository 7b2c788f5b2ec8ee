//go:build windows

package fsutil

import "os"

// renameio does not support Windows; write a sibling temp file and rename.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return err
	}
	return nil
}

type tempPending struct {
	*os.File
	target string
	done   bool
}

func newPending(path string, perm os.FileMode) (pending, error) {
	f, err := os.OpenFile(path+".tmp", os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, err
	}
	return &tempPending{File: f, target: path}, nil
}

func (p *tempPending) commit() error {
	p.done = true
	if err := p.Close(); err != nil {
		os.Remove(p.Name())
		return err
	}
	if err := os.Rename(p.Name(), p.target); err != nil {
		os.Remove(p.Name())
		return err
	}
	return nil
}

func (p *tempPending) cleanup() error {
	if p.done {
		return nil
	}
	p.done = true
	p.Close()
	return os.Remove(p.Name())
}
