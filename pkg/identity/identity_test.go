package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path string, content []byte) os.FileInfo {
	t.Helper()
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info
}

func TestContentIdentityIsStable(t *testing.T) {
	h := NewHasher(0)
	path := filepath.Join(t.TempDir(), "a.jpg")
	writeFile(t, path, []byte("same bytes"))

	first, err := h.IdentifyFile(path)
	if err != nil {
		t.Fatalf("IdentifyFile failed: %v", err)
	}
	second, err := h.IdentifyFile(path)
	if err != nil {
		t.Fatalf("IdentifyFile failed: %v", err)
	}
	if first != second {
		t.Errorf("identity not stable across runs: %s != %s", first, second)
	}

	want := sha256.Sum256([]byte("same bytes"))
	if first != hex.EncodeToString(want[:]) {
		t.Errorf("identity is not the sha256 of the content: %s", first)
	}
}

func TestContentIdentityChangesWithBytes(t *testing.T) {
	h := NewHasher(0)
	dir := t.TempDir()

	pathA := filepath.Join(dir, "a.jpg")
	pathB := filepath.Join(dir, "b.jpg")
	writeFile(t, pathA, []byte("content A"))
	writeFile(t, pathB, []byte("content B"))

	idA, err := h.IdentifyFile(pathA)
	if err != nil {
		t.Fatal(err)
	}
	idB, err := h.IdentifyFile(pathB)
	if err != nil {
		t.Fatal(err)
	}
	if idA == idB {
		t.Error("different content produced the same identity")
	}
}

func TestSameContentDifferentPathsMatch(t *testing.T) {
	h := NewHasher(0)
	dir := t.TempDir()

	pathA := filepath.Join(dir, "camera", "IMG_0001.jpg")
	pathB := filepath.Join(dir, "imported", "copy.jpg")
	if err := os.MkdirAll(filepath.Dir(pathA), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(pathB), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, pathA, []byte("shared pixels"))
	writeFile(t, pathB, []byte("shared pixels"))

	idA, _ := h.IdentifyFile(pathA)
	idB, _ := h.IdentifyFile(pathB)
	if idA != idB {
		t.Error("identical content on different paths must share an identity")
	}
}

// Files at or above the threshold are identified by metadata, not content, so
// rescanning an unmodified large video yields the same identity without
// reading its bytes.
func TestLargeFileUsesMetadataIdentity(t *testing.T) {
	// A tiny threshold stands in for the 50 MiB default.
	h := NewHasher(1)
	path := filepath.Join(t.TempDir(), "video.mp4")
	info := writeFile(t, path, []byte("large video payload"))

	first, err := h.Identify(path, info)
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.Identify(path, info)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("metadata identity not stable for unchanged file")
	}

	contentDigest := sha256.Sum256([]byte("large video payload"))
	if first == hex.EncodeToString(contentDigest[:]) {
		t.Error("large file must not be identified by its content hash")
	}

	// Touching the mtime changes the metadata identity.
	newTime := info.ModTime().Add(2 * time.Second)
	if err := os.Chtimes(path, newTime, newTime); err != nil {
		t.Fatal(err)
	}
	touched, err := h.IdentifyFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if touched == first {
		t.Error("metadata identity did not change with mtime")
	}
}

func TestThresholdBoundary(t *testing.T) {
	payload := []byte("0123456789") // 10 bytes
	path := filepath.Join(t.TempDir(), "boundary.jpg")
	info := writeFile(t, path, payload)

	below := NewHasher(11)
	at := NewHasher(10)

	contentID, err := below.Identify(path, info)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(payload)
	if contentID != hex.EncodeToString(want[:]) {
		t.Error("file below threshold must use the content hash")
	}

	metaID, err := at.Identify(path, info)
	if err != nil {
		t.Fatal(err)
	}
	if metaID == contentID {
		t.Error("file at the threshold must use the metadata identity")
	}
}

func TestZeroThresholdSelectsDefault(t *testing.T) {
	h := NewHasher(0)
	if h.Threshold() != DefaultLargeFileThreshold {
		t.Errorf("expected default threshold, got %d", h.Threshold())
	}
}

func TestIdentifyMissingFileFails(t *testing.T) {
	h := NewHasher(0)
	if _, err := h.IdentifyFile(filepath.Join(t.TempDir(), "gone.jpg")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
