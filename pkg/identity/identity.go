// Package identity derives stable content identifiers for media files.
// Identical bytes produce the same identity on every device, which is what
// lets the sync engine recognize an item uploaded elsewhere as already known.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/pixeldrift/photosync/pkg/pool"
)

// DefaultLargeFileThreshold is the size at and above which identity is derived
// from metadata instead of content bytes.
const DefaultLargeFileThreshold = 50 * 1024 * 1024

// Hasher computes content identities. Files below the threshold are hashed
// over their full bytes; files at or above it are hashed over the tuple
// (absolute path, size, modification time in milliseconds) so a multi-GiB
// video is never read twice per scan.
//
// Known limitation: large-file identity is not content-based. Two distinct
// large files sharing path, size and mtime after a move would collide.
type Hasher struct {
	threshold int64
	bufPool   *pool.FixedBufferPool
}

// NewHasher creates a Hasher with the given threshold in bytes. A threshold
// of 0 or below selects the default.
func NewHasher(threshold int64) *Hasher {
	if threshold <= 0 {
		threshold = DefaultLargeFileThreshold
	}
	return &Hasher{
		threshold: threshold,
		bufPool:   pool.NewFixedBufferPool(256*1024, 8),
	}
}

// Threshold returns the configured large-file threshold in bytes.
func (h *Hasher) Threshold() int64 {
	return h.threshold
}

// Identify derives the identity for the file described by absPath and info.
// The caller passes the os.FileInfo it already has from scanning so the file
// is not stat'd twice.
func (h *Hasher) Identify(absPath string, info os.FileInfo) (string, error) {
	if info.Size() >= h.threshold {
		return h.metadataIdentity(absPath, info), nil
	}
	return h.contentIdentity(absPath)
}

// IdentifyFile stats the file and derives its identity.
func (h *Hasher) IdentifyFile(absPath string) (string, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", absPath, err)
	}
	return h.Identify(absPath, info)
}

// contentIdentity streams the file through SHA-256.
func (h *Hasher) contentIdentity(absPath string) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for hashing: %w", absPath, err)
	}
	defer f.Close()

	bufPtr := h.bufPool.Get()
	defer h.bufPool.Put(bufPtr)

	digest := sha256.New()
	if _, err := io.CopyBuffer(digest, f, *bufPtr); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", absPath, err)
	}
	return hex.EncodeToString(digest.Sum(nil)), nil
}

// metadataIdentity hashes the (path, size, mtimeMillis) tuple.
func (h *Hasher) metadataIdentity(absPath string, info os.FileInfo) string {
	composite := fmt.Sprintf("%s|%d|%d", absPath, info.Size(), info.ModTime().UnixMilli())
	digest := sha256.Sum256([]byte(composite))
	return hex.EncodeToString(digest[:])
}
