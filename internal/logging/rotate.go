// Package logging provides the size-triggered, gzip-rotated file writer
// both ft8op processes use for their operational logs, the same rotate-
// then-compress shape the teacher's HTTP access logger follows.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// RotatingFile is an append-only log file that gzip-compresses itself
// into a numbered backup once it crosses maxSize, keeping at most
// backups compressed generations around.
type RotatingFile struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	backups  int
	f        *os.File
	size     int64
}

// Open opens (creating if needed) the log file at path, rotating
// immediately if it already exceeds maxSize.
func Open(path string, maxSize int64, backups int) (*RotatingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("logging: stat %s: %w", path, err)
	}
	rf := &RotatingFile{path: path, maxSize: maxSize, backups: backups, f: f, size: info.Size()}
	if rf.maxSize > 0 && rf.size >= rf.maxSize {
		if err := rf.rotate(); err != nil {
			return nil, err
		}
	}
	return rf, nil
}

// Write implements io.Writer, rotating before it would overflow maxSize.
func (r *RotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate closes the current file, gzips it into path.1.gz (shifting any
// existing numbered backups up by one, dropping the oldest once the
// configured backup count is exceeded), and reopens path fresh.
func (r *RotatingFile) rotate() error {
	if err := r.f.Close(); err != nil {
		return fmt.Errorf("logging: close before rotate: %w", err)
	}

	if r.backups > 0 {
		oldest := fmt.Sprintf("%s.%d.gz", r.path, r.backups)
		os.Remove(oldest)
		for i := r.backups - 1; i >= 1; i-- {
			from := fmt.Sprintf("%s.%d.gz", r.path, i)
			to := fmt.Sprintf("%s.%d.gz", r.path, i+1)
			os.Rename(from, to)
		}
		if err := gzipFile(r.path, fmt.Sprintf("%s.1.gz", r.path)); err != nil {
			return err
		}
	}

	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("logging: remove rotated file: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: reopen %s after rotate: %w", r.path, err)
	}
	r.f = f
	r.size = 0
	return nil
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("logging: open %s for rotation: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("logging: create %s: %w", dst, err)
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return fmt.Errorf("logging: gzip %s: %w", src, err)
	}
	return gw.Close()
}

// Close flushes and closes the current file.
func (r *RotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
