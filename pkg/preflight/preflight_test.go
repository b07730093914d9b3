package preflight

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckLibraryAccessibleCreatesDirectory(t *testing.T) {
	library := filepath.Join(t.TempDir(), "library")

	if err := CheckLibraryAccessible(library); err != nil {
		t.Fatalf("expected check to create and pass, got: %v", err)
	}
	info, err := os.Stat(library)
	if err != nil || !info.IsDir() {
		t.Fatalf("library directory not created: %v", err)
	}
}

func TestCheckLibraryAccessibleRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := CheckLibraryAccessible(path); err == nil {
		t.Fatal("expected error for a file at the library path")
	}
}

func TestCheckScanRootsAccessible(t *testing.T) {
	existing := t.TempDir()
	missing := filepath.Join(t.TempDir(), "gone")

	if err := CheckScanRootsAccessible([]string{missing, existing}); err != nil {
		t.Errorf("one accessible root should be enough: %v", err)
	}
	if err := CheckScanRootsAccessible([]string{missing}); err == nil {
		t.Error("expected error when no root is accessible")
	}
	if err := CheckScanRootsAccessible(nil); err == nil {
		t.Error("expected error for empty root list")
	}
}

func TestCheckFreeDiskSpace(t *testing.T) {
	dir := t.TempDir()

	if err := CheckFreeDiskSpace(dir, 0); err != nil {
		t.Errorf("zero requirement should always pass: %v", err)
	}
	if err := CheckFreeDiskSpace(dir, 1); err != nil {
		t.Errorf("one byte requirement should pass on any test machine: %v", err)
	}
	// An absurd requirement must fail.
	if err := CheckFreeDiskSpace(dir, 1<<60); err == nil {
		t.Error("expected failure for an exabyte requirement")
	}
}
