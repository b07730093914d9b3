// Package remotefs abstracts the remote hierarchical store the sync engine
// converges against. The store is deliberately dumb: list, mkdir, upload,
// download and delete are the only operations, and there is no server-side
// locking or transaction support. Every backend failure is normalized into a
// *Error carrying a Kind, so callers can distinguish "not found" (a routine
// condition during convergence) from transport failures without knowing which
// backend produced them.
package remotefs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind classifies a remote operation failure.
type Kind int

const (
	// KindTransfer is a failure moving or mutating a single file. The sync
	// run records it against the affected mapping and continues.
	KindTransfer Kind = iota
	// KindNotFound means the path does not exist on the remote store.
	KindNotFound
	// KindConnectivity means the remote store is unreachable or rejected the
	// credentials. Fatal to a sync run.
	KindConnectivity
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConnectivity:
		return "connectivity"
	default:
		return "transfer"
	}
}

// Error is the normalized failure type returned by every backend.
type Error struct {
	Kind Kind
	Op   string // The failed operation, e.g. "list", "upload".
	Path string // Remote path the operation targeted.
	Err  error  // Underlying backend error.
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s %s: %s: %v", e.Op, e.Path, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a remote not-found failure.
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindNotFound
}

// IsConnectivity reports whether err is a remote connectivity failure.
func IsConnectivity(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindConnectivity
}

// Entry is one item of a remote directory listing.
type Entry struct {
	// Path is the full remote path of the entry, forward-slash separated.
	Path string
	// Name is the final path element.
	Name string
	// Size in bytes; zero for directories.
	Size int64
	// IsDir reports whether the entry is a directory (or directory-like
	// prefix on object stores).
	IsDir bool
}

// Client is the remote-filesystem capability consumed by the sync engine.
// All paths are forward-slash separated and relative to the backend's root.
// Implementations must return *Error for every failure.
type Client interface {
	// Connect verifies reachability and credentials. It is called once
	// before a run; a failure aborts the run before any state changes.
	Connect(ctx context.Context) error

	// List enumerates the direct children of a remote directory.
	List(ctx context.Context, path string) ([]Entry, error)

	// Mkdir creates a remote directory and any missing parents. Creating a
	// directory that already exists is not an error.
	Mkdir(ctx context.Context, path string) error

	// Upload copies a local file to a remote path, overwriting any previous
	// content at that path.
	Upload(ctx context.Context, remotePath, localPath string) error

	// Download copies a remote file to a local path. Implementations write
	// to a temporary file and rename so an interrupted download never leaves
	// a truncated file at localPath.
	Download(ctx context.Context, remotePath, localPath string) error

	// Delete removes a single remote file.
	Delete(ctx context.Context, path string) error

	// DeleteDir removes a remote directory and everything beneath it.
	DeleteDir(ctx context.Context, path string) error
}

// timeoutClient applies a per-call deadline to every operation of the wrapped
// client. The remote store itself has no timeout semantics, so a stalled
// single call must be bounded here to keep one hung transfer from wedging a
// whole run.
type timeoutClient struct {
	inner   Client
	perCall time.Duration
}

// WithTimeout wraps a client so that each call is bounded by perCall.
// A non-positive duration returns the client unchanged.
func WithTimeout(c Client, perCall time.Duration) Client {
	if perCall <= 0 {
		return c
	}
	return &timeoutClient{inner: c, perCall: perCall}
}

func (t *timeoutClient) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.perCall)
	defer cancel()
	return fn(ctx)
}

func (t *timeoutClient) Connect(ctx context.Context) error {
	return t.call(ctx, t.inner.Connect)
}

func (t *timeoutClient) List(ctx context.Context, path string) ([]Entry, error) {
	var entries []Entry
	err := t.call(ctx, func(ctx context.Context) error {
		var listErr error
		entries, listErr = t.inner.List(ctx, path)
		return listErr
	})
	return entries, err
}

func (t *timeoutClient) Mkdir(ctx context.Context, path string) error {
	return t.call(ctx, func(ctx context.Context) error { return t.inner.Mkdir(ctx, path) })
}

func (t *timeoutClient) Upload(ctx context.Context, remotePath, localPath string) error {
	return t.call(ctx, func(ctx context.Context) error { return t.inner.Upload(ctx, remotePath, localPath) })
}

func (t *timeoutClient) Download(ctx context.Context, remotePath, localPath string) error {
	return t.call(ctx, func(ctx context.Context) error { return t.inner.Download(ctx, remotePath, localPath) })
}

func (t *timeoutClient) Delete(ctx context.Context, path string) error {
	return t.call(ctx, func(ctx context.Context) error { return t.inner.Delete(ctx, path) })
}

func (t *timeoutClient) DeleteDir(ctx context.Context, path string) error {
	return t.call(ctx, func(ctx context.Context) error { return t.inner.DeleteDir(ctx, path) })
}
