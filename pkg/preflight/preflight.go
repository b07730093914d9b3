// Package preflight provides validation checks that run before a sync run
// begins. The checks are stateless apart from ensuring the library directory
// exists; their job is to fail early with a friendly error instead of letting
// a transfer fail halfway through.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pixeldrift/photosync/pkg/util"
)

// CheckLibraryAccessible ensures the library root exists (creating it if
// needed), is a directory, and is writable.
func CheckLibraryAccessible(libraryRoot string) error {
	info, err := os.Stat(libraryRoot)
	if err == nil && !info.IsDir() {
		return fmt.Errorf("library path exists but is not a directory: %s", libraryRoot)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cannot access library path %s: %w", libraryRoot, err)
	}

	if err := os.MkdirAll(libraryRoot, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create library directory %s: %w", libraryRoot, err)
	}

	// A thorough write check: create and delete a temporary file.
	tempFile := filepath.Join(libraryRoot, ".photosync-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("library directory %s is not writable: %w", libraryRoot, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// CheckScanRootsAccessible validates that at least one scan root exists and is
// a directory. Individual missing roots are tolerated (the scanner skips
// them), but a configuration where nothing can be scanned is an error.
func CheckScanRootsAccessible(roots []string) error {
	if len(roots) == 0 {
		return fmt.Errorf("no scan roots configured")
	}

	accessible := 0
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}
		accessible++
	}
	if accessible == 0 {
		return fmt.Errorf("none of the %d configured scan roots is accessible", len(roots))
	}
	return nil
}

// CheckFreeDiskSpace verifies the filesystem holding path has room for the
// planned download volume plus a safety margin.
func CheckFreeDiskSpace(path string, requiredBytes int64) error {
	if requiredBytes <= 0 {
		return nil
	}

	free, err := freeBytes(path)
	if err != nil {
		return fmt.Errorf("failed to determine free disk space for %s: %w", path, err)
	}

	// Keep a 5% headroom so a download burst never fills the disk entirely.
	needed := requiredBytes + requiredBytes/20
	if free < uint64(needed) {
		return fmt.Errorf("not enough free disk space on %s: need %s, have %s",
			path, util.ByteCountIEC(needed), util.ByteCountIEC(int64(free)))
	}
	return nil
}
