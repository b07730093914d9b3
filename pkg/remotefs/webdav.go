package remotefs

import (
	"context"
	"os"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/pixeldrift/photosync/pkg/pool"
	"github.com/pixeldrift/photosync/pkg/util"
)

// WebDAVOptions configures the WebDAV backend.
type WebDAVOptions struct {
	// URL is the base URL of the share, e.g. "https://nas.local/remote.php/dav/files/anna".
	URL      string
	Username string
	Password string
	// Timeout bounds each HTTP request. The gowebdav client does not take a
	// context per call, so per-request deadlines are configured here instead
	// of through WithTimeout.
	Timeout time.Duration
}

// WebDAVClient serves a WebDAV share (Nextcloud, NAS, Apache mod_dav) as the
// remote store.
type WebDAVClient struct {
	dav     *gowebdav.Client
	bufPool *pool.FixedBufferPool
}

// NewWebDAV creates a client for the given share.
func NewWebDAV(opts WebDAVOptions) *WebDAVClient {
	dav := gowebdav.NewClient(opts.URL, opts.Username, opts.Password)
	if opts.Timeout > 0 {
		dav.SetTimeout(opts.Timeout)
	}
	return &WebDAVClient{
		dav:     dav,
		bufPool: pool.NewFixedBufferPool(256*1024, 8),
	}
}

func (c *WebDAVClient) wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	kind := KindTransfer
	switch {
	case gowebdav.IsErrNotFound(err):
		kind = KindNotFound
	case gowebdav.IsErrCode(err, 401), gowebdav.IsErrCode(err, 403):
		kind = KindConnectivity
	}
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (c *WebDAVClient) Connect(ctx context.Context) error {
	if err := c.dav.Connect(); err != nil {
		return &Error{Kind: KindConnectivity, Op: "connect", Path: "/", Err: err}
	}
	return nil
}

func (c *WebDAVClient) List(ctx context.Context, path string) ([]Entry, error) {
	infos, err := c.dav.ReadDir("/" + path)
	if err != nil {
		return nil, c.wrap("list", path, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Path:  util.JoinRemote(path, info.Name()),
			Name:  info.Name(),
			Size:  info.Size(),
			IsDir: info.IsDir(),
		})
	}
	return entries, nil
}

func (c *WebDAVClient) Mkdir(ctx context.Context, path string) error {
	return c.wrap("mkdir", path, c.dav.MkdirAll("/"+path, util.UserWritableDirPerms))
}

func (c *WebDAVClient) Upload(ctx context.Context, remotePath, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &Error{Kind: KindTransfer, Op: "upload", Path: remotePath, Err: err}
	}
	defer f.Close()

	return c.wrap("upload", remotePath, c.dav.WriteStream("/"+remotePath, f, util.UserWritableFilePerms))
}

func (c *WebDAVClient) Download(ctx context.Context, remotePath, localPath string) error {
	stream, err := c.dav.ReadStream("/" + remotePath)
	if err != nil {
		return c.wrap("download", remotePath, err)
	}
	defer stream.Close()

	bufPtr := c.bufPool.Get()
	defer c.bufPool.Put(bufPtr)
	if err := writeAtomic(stream, localPath, bufPtr); err != nil {
		return &Error{Kind: KindTransfer, Op: "download", Path: remotePath, Err: err}
	}
	return nil
}

func (c *WebDAVClient) Delete(ctx context.Context, path string) error {
	return c.wrap("delete", path, c.dav.Remove("/"+path))
}

func (c *WebDAVClient) DeleteDir(ctx context.Context, path string) error {
	return c.wrap("deletedir", path, c.dav.RemoveAll("/"+path))
}

var _ Client = (*WebDAVClient)(nil)
