package remotefs

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func newTestClient(t *testing.T) (*LocalClient, string) {
	t.Helper()
	root := t.TempDir()
	c := NewLocal(root)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return c, root
}

func writeLocalFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "img.jpg")
	writeLocalFile(t, src, "jpeg bytes")

	if err := c.Upload(ctx, "2024/05/01/img.jpg", src); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	dst := filepath.Join(t.TempDir(), "nested", "img.jpg")
	if err := c.Download(ctx, "2024/05/01/img.jpg", dst); err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "jpeg bytes" {
		t.Errorf("downloaded content mismatch: %q", got)
	}
}

func TestDownloadMissingIsNotFound(t *testing.T) {
	c, _ := newTestClient(t)

	err := c.Download(context.Background(), "nope/missing.jpg", filepath.Join(t.TempDir(), "out"))
	if err == nil {
		t.Fatal("expected error for missing remote file")
	}
	if !IsNotFound(err) {
		t.Errorf("expected not-found kind, got: %v", err)
	}
	if IsConnectivity(err) {
		t.Error("not-found must not classify as connectivity")
	}
}

func TestListMissingIsNotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.List(context.Background(), "does/not/exist")
	if !IsNotFound(err) {
		t.Errorf("expected not-found kind, got: %v", err)
	}
}

func TestListSeparatesFilesAndDirs(t *testing.T) {
	c, root := newTestClient(t)
	ctx := context.Background()

	writeLocalFile(t, filepath.Join(root, "photos", "a.jpg"), "a")
	writeLocalFile(t, filepath.Join(root, "photos", "b.jpg"), "bb")
	if err := c.Mkdir(ctx, "photos/sub"); err != nil {
		t.Fatal(err)
	}

	entries, err := c.List(ctx, "photos")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Name != "a.jpg" || entries[0].IsDir || entries[0].Size != 1 {
		t.Errorf("unexpected entry: %+v", entries[0])
	}
	if entries[1].Name != "b.jpg" || entries[1].Size != 2 {
		t.Errorf("unexpected entry: %+v", entries[1])
	}
	if entries[2].Name != "sub" || !entries[2].IsDir {
		t.Errorf("unexpected entry: %+v", entries[2])
	}
	if entries[2].Path != "photos/sub" {
		t.Errorf("expected forward-slash path, got %q", entries[2].Path)
	}
}

func TestDeleteAndDeleteDir(t *testing.T) {
	c, root := newTestClient(t)
	ctx := context.Background()

	writeLocalFile(t, filepath.Join(root, "photos", "a.jpg"), "a")
	writeLocalFile(t, filepath.Join(root, "photos", "deep", "b.jpg"), "b")

	if err := c.Delete(ctx, "photos/a.jpg"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "photos", "a.jpg")); !os.IsNotExist(err) {
		t.Error("file should be gone after Delete")
	}

	if err := c.DeleteDir(ctx, "photos"); err != nil {
		t.Fatalf("DeleteDir failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "photos")); !os.IsNotExist(err) {
		t.Error("directory should be gone after DeleteDir")
	}

	// Deleting again reports not-found.
	if err := c.DeleteDir(ctx, "photos"); !IsNotFound(err) {
		t.Errorf("expected not-found for repeated DeleteDir, got %v", err)
	}
}

func TestUploadOverwrites(t *testing.T) {
	c, root := newTestClient(t)
	ctx := context.Background()

	src1 := filepath.Join(t.TempDir(), "v1")
	src2 := filepath.Join(t.TempDir(), "v2")
	writeLocalFile(t, src1, "first")
	writeLocalFile(t, src2, "second")

	if err := c.Upload(ctx, "img.jpg", src1); err != nil {
		t.Fatal(err)
	}
	if err := c.Upload(ctx, "img.jpg", src2); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(filepath.Join(root, "img.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Errorf("expected overwrite, got %q", got)
	}
}

func TestMkdirIdempotent(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	if err := c.Mkdir(ctx, "a/b/c"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := c.Mkdir(ctx, "a/b/c"); err != nil {
		t.Fatalf("repeated Mkdir must not fail: %v", err)
	}
}

func TestTimeoutClientHonorsDeadline(t *testing.T) {
	c := WithTimeout(&stallClient{}, 20*time.Millisecond)

	start := time.Now()
	err := c.Connect(context.Background())
	if err == nil {
		t.Fatal("expected deadline error from stalled call")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call was not bounded by the per-call timeout: %v", elapsed)
	}
}

func TestWithTimeoutZeroIsPassthrough(t *testing.T) {
	inner := NewLocal(t.TempDir())
	if got := WithTimeout(inner, 0); got != Client(inner) {
		t.Error("zero timeout should return the client unchanged")
	}
}

// stallClient blocks every call until its context expires.
type stallClient struct{}

func (s *stallClient) stall(ctx context.Context) error {
	<-ctx.Done()
	return &Error{Kind: KindConnectivity, Op: "connect", Path: "/", Err: ctx.Err()}
}

func (s *stallClient) Connect(ctx context.Context) error { return s.stall(ctx) }
func (s *stallClient) List(ctx context.Context, path string) ([]Entry, error) {
	return nil, s.stall(ctx)
}
func (s *stallClient) Mkdir(ctx context.Context, path string) error { return s.stall(ctx) }
func (s *stallClient) Upload(ctx context.Context, remotePath, localPath string) error {
	return s.stall(ctx)
}
func (s *stallClient) Download(ctx context.Context, remotePath, localPath string) error {
	return s.stall(ctx)
}
func (s *stallClient) Delete(ctx context.Context, path string) error    { return s.stall(ctx) }
func (s *stallClient) DeleteDir(ctx context.Context, path string) error { return s.stall(ctx) }
