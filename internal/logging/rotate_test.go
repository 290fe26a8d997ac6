package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRotatingFileRotatesOnSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	rf, err := Open(path, 16, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rf.Close()

	if _, err := rf.Write([]byte("0123456789012345")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := rf.Write([]byte("more")); err != nil {
		t.Fatalf("write after rotate: %v", err)
	}

	if _, err := os.Stat(path + ".1.gz"); err != nil {
		t.Errorf("expected rotated backup at %s.1.gz: %v", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current log: %v", err)
	}
	if string(data) != "more" {
		t.Errorf("current log = %q, want %q", data, "more")
	}
}

func TestOpenCreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.log")
	rf, err := Open(path, 0, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rf.Close()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected log file to exist: %v", err)
	}
}
