package remotefs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pixeldrift/photosync/pkg/pool"
	"github.com/pixeldrift/photosync/pkg/util"
)

// LocalClient serves a mounted directory (NAS share, USB disk) as the remote
// store. It is also the backend the engine's tests run against.
type LocalClient struct {
	root    string
	bufPool *pool.FixedBufferPool
}

// NewLocal creates a client rooted at the given directory. The directory does
// not have to exist yet; Connect creates it.
func NewLocal(root string) *LocalClient {
	return &LocalClient{
		root:    root,
		bufPool: pool.NewFixedBufferPool(256*1024, 8),
	}
}

// abs converts a forward-slash remote path into an absolute host path under
// the client's root.
func (c *LocalClient) abs(path string) string {
	return filepath.Join(c.root, util.DenormalizePath(path))
}

func (c *LocalClient) wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindTransfer
	if os.IsNotExist(err) {
		kind = KindNotFound
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (c *LocalClient) Connect(ctx context.Context) error {
	if err := os.MkdirAll(c.root, util.UserWritableDirPerms); err != nil {
		return &Error{Kind: KindConnectivity, Op: "connect", Path: "/", Err: err}
	}
	// A mount that exists but cannot be written is as good as unreachable.
	probe := filepath.Join(c.root, ".photosync-writetest.tmp")
	f, err := os.Create(probe)
	if err != nil {
		return &Error{Kind: KindConnectivity, Op: "connect", Path: "/", Err: err}
	}
	f.Close()
	_ = os.Remove(probe)
	return nil
}

func (c *LocalClient) List(ctx context.Context, path string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(c.abs(path))
	if err != nil {
		return nil, c.wrap("list", path, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		var size int64
		if !de.IsDir() {
			if info, err := de.Info(); err == nil {
				size = info.Size()
			}
		}
		entries = append(entries, Entry{
			Path:  util.JoinRemote(path, de.Name()),
			Name:  de.Name(),
			Size:  size,
			IsDir: de.IsDir(),
		})
	}
	return entries, nil
}

func (c *LocalClient) Mkdir(ctx context.Context, path string) error {
	return c.wrap("mkdir", path, os.MkdirAll(c.abs(path), util.UserWritableDirPerms))
}

func (c *LocalClient) Upload(ctx context.Context, remotePath, localPath string) error {
	in, err := os.Open(localPath)
	if err != nil {
		return &Error{Kind: KindTransfer, Op: "upload", Path: remotePath, Err: err}
	}
	defer in.Close()

	if err := c.copyAtomic(in, c.abs(remotePath)); err != nil {
		return &Error{Kind: KindTransfer, Op: "upload", Path: remotePath, Err: err}
	}
	return nil
}

func (c *LocalClient) Download(ctx context.Context, remotePath, localPath string) error {
	in, err := os.Open(c.abs(remotePath))
	if err != nil {
		return c.wrap("download", remotePath, err)
	}
	defer in.Close()

	if err := c.copyAtomic(in, localPath); err != nil {
		return &Error{Kind: KindTransfer, Op: "download", Path: remotePath, Err: err}
	}
	return nil
}

// copyAtomic writes the reader's content to dst with a pooled buffer using
// the shared temp-and-rename helper.
func (c *LocalClient) copyAtomic(in io.Reader, dst string) error {
	bufPtr := c.bufPool.Get()
	defer c.bufPool.Put(bufPtr)
	return writeAtomic(in, dst, bufPtr)
}

func (c *LocalClient) Delete(ctx context.Context, path string) error {
	err := os.Remove(c.abs(path))
	return c.wrap("delete", path, err)
}

func (c *LocalClient) DeleteDir(ctx context.Context, path string) error {
	abs := c.abs(path)
	if _, err := os.Stat(abs); err != nil {
		return c.wrap("deletedir", path, err)
	}
	return c.wrap("deletedir", path, os.RemoveAll(abs))
}

// Statically assert the backend satisfies the client interface.
var _ Client = (*LocalClient)(nil)
