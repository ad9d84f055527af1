// Package recording appends a session's raw inbound audio to a file.
package recording

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Recorder writes raw PCM exactly as received, before any validation.
// A nil *Recorder discards everything.
type Recorder struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
	n    int64
}

// Open creates dir if needed and truncates <dir>/<sessionID>.raw.
// An empty dir disables recording and returns a nil Recorder.
func Open(dir, sessionID string) (*Recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording: create dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(sessionID)+".raw")
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}
	return &Recorder{f: f, w: bufio.NewWriterSize(f, 64*1024), path: path}, nil
}

func (r *Recorder) Write(p []byte) (int, error) {
	if r == nil {
		return len(p), nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.w.Write(p)
	r.n += int64(n)
	return n, err
}

// Path is the file being written, empty for a nil Recorder.
func (r *Recorder) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

// Size is the number of bytes written so far.
func (r *Recorder) Size() int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		r.f.Close()
		return fmt.Errorf("recording: flush: %w", err)
	}
	return r.f.Close()
}
