package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadFileScoped_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(p, []byte("name: Board"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	b, err := ReadFileScoped(p, 0)
	if err != nil {
		t.Fatalf("ReadFileScoped error: %v", err)
	}
	if string(b) != "name: Board" {
		t.Fatalf("unexpected content: %q", string(b))
	}
}

func TestReadFileScoped_RejectsInvalidPath(t *testing.T) {
	for _, p := range []string{"", ".", string(filepath.Separator)} {
		if _, err := ReadFileScoped(p, 0); err == nil {
			t.Fatalf("expected error for %q", p)
		}
	}
}

func TestReadFileScoped_Missing(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadFileScoped(filepath.Join(dir, "missing.yaml"), 0); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := ReadFileScoped(filepath.Join(dir, "nodir", "wf.yaml"), 0); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestReadFileScoped_Limit(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "big.yaml")
	if err := os.WriteFile(p, []byte(strings.Repeat("a", 64)), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadFileScoped(p, 63); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	data, err := ReadFileScoped(p, 64)
	if err != nil {
		t.Fatalf("ReadFileScoped at limit: %v", err)
	}
	if len(data) != 64 {
		t.Fatalf("expected 64 bytes, got %d", len(data))
	}
}
