package remotefs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pixeldrift/photosync/pkg/util"
)

// writeAtomic streams the reader's content into dst via a temporary file in
// the destination directory followed by a rename, so a partial write never
// replaces or corrupts an existing file. Missing parent directories are
// created.
func writeAtomic(in io.Reader, dst string, buf *[]byte) error {
	dstDir := filepath.Dir(dst)
	if err := os.MkdirAll(dstDir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dstDir, err)
	}

	out, err := os.CreateTemp(dstDir, "photosync-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dstDir, err)
	}
	tempPath := out.Name()
	// If the rename succeeds, tempPath is cleared and this becomes a no-op.
	defer func() {
		if tempPath != "" {
			os.Remove(tempPath)
		}
	}()

	if _, err := io.CopyBuffer(out, in, *buf); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy content to %s: %w", tempPath, err)
	}
	if err := out.Chmod(util.UserWritableFilePerms); err != nil {
		out.Close()
		return fmt.Errorf("failed to set permissions on %s: %w", tempPath, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, dst); err != nil {
		return err
	}
	tempPath = ""
	return nil
}
