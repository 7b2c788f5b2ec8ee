package events

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hugo-lorenzo-mato/memwall/internal/fsutil"
)

// Recorder captures a run's frames as a JSON-lines transcript. Frames are
// streamed to a pending file that replaces the transcript atomically on
// Close, so a reader never sees a partial run. A recording failure never
// fails the display it is fanned out with; it is reported by Close.
type Recorder struct {
	path string
	mu   sync.Mutex
	file *fsutil.PendingFile
	w    *bufio.Writer
	n    int
	err  error

	closed bool
}

// NewRecorder creates a recorder that will write to path.
func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

// Send appends the frame to the transcript.
func (r *Recorder) Send(_ context.Context, f Frame) error {
	line, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.openLocked() {
		return nil
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		r.err = fmt.Errorf("writing transcript: %w", err)
		return nil
	}
	r.n++
	return nil
}

func (r *Recorder) openLocked() bool {
	if r.err != nil || r.closed {
		return false
	}
	if r.file != nil {
		return true
	}
	file, err := fsutil.CreatePending(r.path, 0o600)
	if err != nil {
		r.err = fmt.Errorf("creating transcript: %w", err)
		return false
	}
	r.file = file
	r.w = bufio.NewWriter(file)
	return true
}

// Frames returns how many frames were recorded.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Close publishes the transcript. A run with no frames still produces an
// empty transcript. Frames sent after Close are ignored.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return r.err
	}
	ok := r.openLocked()
	r.closed = true
	if !ok {
		if r.file != nil {
			_ = r.file.Cleanup()
		}
		return r.err
	}
	if err := r.w.Flush(); err != nil {
		_ = r.file.Cleanup()
		r.err = fmt.Errorf("writing transcript: %w", err)
		return r.err
	}
	if err := r.file.Commit(); err != nil {
		r.err = fmt.Errorf("writing transcript: %w", err)
	}
	return r.err
}
