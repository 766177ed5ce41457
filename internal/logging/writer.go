package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RotatingWriter is an append-only file writer that rotates once the
// file crosses a size cap. Rotated files carry numeric suffixes, newest
// first: synapstor.log.1 is the most recent, synapstor.log.N the oldest
// still kept.
type RotatingWriter struct {
	path string
	cap  int64
	keep int

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending, creating the parent
// directory if needed. maxSizeMB caps the live file; maxFiles bounds
// the rotated chain.
func NewRotatingWriter(path string, maxSizeMB, maxFiles int) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &RotatingWriter{
		path: path,
		cap:  int64(maxSizeMB) << 20,
		keep: maxFiles,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	w.file = f
	if info, err := f.Stat(); err == nil {
		w.size = info.Size()
	} else {
		w.size = 0
	}
	return nil
}

// Write appends p, rotating first when the record would push the file
// past the cap. A failed rotation is reported on stderr and the record
// appended in place, so log data outlives a stuck rename.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size > 0 && w.size+int64(len(p)) > w.cap {
		if err := w.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = w.file.Sync()
	return n, nil
}

// Sync flushes the current file to disk.
func (w *RotatingWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

// Close flushes and closes the file. The writer is unusable afterwards.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	_ = w.file.Sync()
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate shifts the numbered chain up by one and moves the live file to
// slot 1. The live file is reopened even when the rename fails, so the
// writer never ends up without a file.
func (w *RotatingWriter) rotate() error {
	_ = w.file.Close()

	_ = os.Remove(w.numbered(w.keep))
	for i := w.keep - 1; i >= 1; i-- {
		_ = os.Rename(w.numbered(i), w.numbered(i+1))
	}
	renameErr := os.Rename(w.path, w.numbered(1))

	w.size = 0
	if err := w.open(); err != nil {
		return err
	}
	if renameErr != nil && !os.IsNotExist(renameErr) {
		return renameErr
	}
	return nil
}

func (w *RotatingWriter) numbered(i int) string {
	return fmt.Sprintf("%s.%d", w.path, i)
}
