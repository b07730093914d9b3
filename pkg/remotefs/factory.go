package remotefs

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend identifies a remote store implementation.
type Backend int

const (
	BackendLocal Backend = iota
	BackendWebDAV
	BackendS3
)

var backendNames = map[Backend]string{
	BackendLocal:  "local",
	BackendWebDAV: "webdav",
	BackendS3:     "s3",
}

func (b Backend) String() string {
	if name, ok := backendNames[b]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(b))
}

// ParseBackend maps a configuration string to a Backend.
func ParseBackend(s string) (Backend, error) {
	for b, name := range backendNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return b, nil
		}
	}
	return BackendLocal, fmt.Errorf("unknown remote backend: %q", s)
}

// Options selects and configures a backend.
type Options struct {
	Backend Backend

	// Root is the mount directory for the local backend.
	Root string

	// WebDAV credentials.
	URL      string
	Username string
	Password string

	// S3 settings.
	S3 S3Options

	// CallTimeout bounds each remote call. Zero disables the wrapper.
	CallTimeout time.Duration
}

// New constructs the configured backend, wrapped with the per-call timeout.
func New(ctx context.Context, opts Options) (Client, error) {
	var (
		client Client
		err    error
	)
	switch opts.Backend {
	case BackendLocal:
		client = NewLocal(opts.Root)
	case BackendWebDAV:
		client = NewWebDAV(WebDAVOptions{
			URL:      opts.URL,
			Username: opts.Username,
			Password: opts.Password,
			Timeout:  opts.CallTimeout,
		})
	case BackendS3:
		client, err = NewS3(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown remote backend: %v", opts.Backend)
	}
	return WithTimeout(client, opts.CallTimeout), nil
}
