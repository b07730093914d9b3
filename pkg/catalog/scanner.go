package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pixeldrift/photosync/pkg/identity"
	"github.com/pixeldrift/photosync/pkg/plog"
)

const (
	// DefaultBatchSize is the number of files hashed per scan batch.
	DefaultBatchSize = 20
	// DefaultWorkers is the number of concurrent hashing workers per batch.
	DefaultWorkers = 4
)

// Scanner walks media roots breadth-first and streams scanned items. A scan is
// a lazy, restartable sequence: every call to Scan starts over, there is no
// cursor persisted across runs.
type Scanner struct {
	hasher    *identity.Hasher
	batchSize int
	workers   int
}

// NewScanner creates a scanner. Zero or negative sizes select the defaults.
func NewScanner(hasher *identity.Hasher, batchSize, workers int) *Scanner {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Scanner{
		hasher:    hasher,
		batchSize: batchSize,
		workers:   workers,
	}
}

// Scan traverses the roots breadth-first with a pending-folder queue, hashing
// files in bounded batches so the first results stream out while the walk is
// still running. Errors reading one folder are logged and skip that subtree,
// never aborting the whole scan. The returned channel is closed when the walk
// finishes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, roots []string) <-chan Item {
	out := make(chan Item, s.batchSize)

	go func() {
		defer close(out)

		queue := make([]string, 0, len(roots))
		queue = append(queue, roots...)

		var batch []string
		for len(queue) > 0 {
			select {
			case <-ctx.Done():
				return
			default:
			}

			dir := queue[0]
			queue = queue[1:]

			entries, err := os.ReadDir(dir)
			if err != nil {
				plog.Warn("Skipping unreadable folder", "path", dir, "error", err)
				continue
			}

			for _, entry := range entries {
				name := entry.Name()
				if strings.HasPrefix(name, ".") {
					continue
				}
				if entry.IsDir() {
					queue = append(queue, filepath.Join(dir, name))
					continue
				}
				batch = append(batch, filepath.Join(dir, name))
				if len(batch) >= s.batchSize {
					if !s.processBatch(ctx, batch, out) {
						return
					}
					batch = nil
				}
			}
		}

		if len(batch) > 0 {
			s.processBatch(ctx, batch, out)
		}
	}()

	return out
}

// processBatch hashes one batch with a bounded worker group and emits the
// resulting items. It returns false when the context was cancelled.
func (s *Scanner) processBatch(ctx context.Context, paths []string, out chan<- Item) bool {
	var mu sync.Mutex
	items := make([]Item, 0, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			item, ok := s.scanFile(path)
			if !ok {
				return nil
			}
			mu.Lock()
			items = append(items, item)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false
	}

	for _, item := range items {
		select {
		case out <- item:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// scanFile builds an Item for one file. Unreadable files are logged and
// dropped.
func (s *Scanner) scanFile(path string) (Item, bool) {
	info, err := os.Stat(path)
	if err != nil {
		plog.Warn("Skipping unreadable file", "path", path, "error", err)
		return Item{}, false
	}

	ext := filepath.Ext(path)
	mediaType := ClassifyExtension(ext)

	id, err := s.hasher.Identify(path, info)
	if err != nil {
		plog.Warn("Skipping file that failed to hash", "path", path, "error", err)
		return Item{}, false
	}

	name := strings.TrimSuffix(filepath.Base(path), ext)
	return Item{
		ID:         id,
		AbsPath:    path,
		Name:       name,
		Ext:        strings.ToLower(ext),
		Size:       info.Size(),
		Type:       mediaType,
		CreatedAt:  info.ModTime(),
		ModifiedAt: info.ModTime(),
	}, true
}
