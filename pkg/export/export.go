// Package export writes archives of the local media library, filtered by
// date range or album membership.
package export

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/pixeldrift/photosync/pkg/catalog"
	"github.com/pixeldrift/photosync/pkg/hints"
	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/pool"
	"github.com/pixeldrift/photosync/pkg/util"
)

// Format is the archive container and compression.
type Format string

const (
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
	FormatZip    Format = "zip"
)

// ErrNoItems reports that the filter matched nothing. It is a hint: the
// library simply has no media in the requested range.
var ErrNoItems = hints.New("no media items matched the export filter")

// ParseFormat resolves a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tar.gz", "tgz", "gz":
		return FormatTarGz, nil
	case "tar.zst", "tzst", "zst", "zstd":
		return FormatTarZst, nil
	case "zip":
		return FormatZip, nil
	default:
		return "", fmt.Errorf("unknown export format %q (expected tar.gz, tar.zst or zip)", s)
	}
}

// DetectFormat infers the format from the destination file name.
func DetectFormat(dst string) (Format, error) {
	lower := strings.ToLower(dst)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst, nil
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, nil
	default:
		return "", fmt.Errorf("cannot infer export format from %q", dst)
	}
}

// Options filters which items are exported. Zero-value bounds are open; a nil
// Album exports the whole selection.
type Options struct {
	// From and To bound the date buckets, inclusive, at day granularity.
	From time.Time
	To   time.Time
	// Album restricts the export to the album's members.
	Album *catalog.Album
}

// Summary is the outcome of one export.
type Summary struct {
	Files int
	Bytes int64
}

const copyBufferSize = 256 * 1024

// Exporter streams media files into archives. Safe for sequential reuse; the
// buffer pool amortizes copy buffers across exports.
type Exporter struct {
	bufPool *pool.FixedBufferPool
}

func NewExporter() *Exporter {
	return &Exporter{bufPool: pool.NewFixedBufferPool(copyBufferSize, 4)}
}

// Export writes the selected items of the index into an archive at dst. The
// archive is written to a temporary file and renamed into place, so an
// interrupted export never leaves a truncated archive at dst.
func (e *Exporter) Export(ctx context.Context, index *catalog.Index, dst string, format Format, opts Options) (Summary, error) {
	var summary Summary

	items := e.selectItems(index, opts)
	if len(items) == 0 {
		return summary, ErrNoItems
	}

	if err := os.MkdirAll(filepath.Dir(dst), util.UserWritableDirPerms); err != nil {
		return summary, fmt.Errorf("failed to create export directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".photosync-export-*")
	if err != nil {
		return summary, fmt.Errorf("failed to create temporary archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmpPath != "" {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	switch format {
	case FormatTarGz, FormatTarZst:
		summary, err = e.writeTar(ctx, tmp, format, items)
	case FormatZip:
		summary, err = e.writeZip(ctx, tmp, items)
	default:
		return summary, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return summary, err
	}

	if err := tmp.Close(); err != nil {
		return summary, fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return summary, fmt.Errorf("failed to move archive into place: %w", err)
	}
	tmpPath = ""

	plog.Info("Export complete",
		"destination", dst,
		"format", string(format),
		"files", summary.Files,
		"size", util.ByteCountIEC(summary.Bytes))
	return summary, nil
}

// selectItems applies the date and album filters, preserving the index's
// newest-first ordering.
func (e *Exporter) selectItems(index *catalog.Index, opts Options) []catalog.Item {
	var items []catalog.Item
	for _, bucket := range index.Buckets() {
		day, err := time.Parse("2006/01/02", bucket.Date)
		if err != nil {
			continue
		}
		if !opts.From.IsZero() && day.Before(truncateDay(opts.From)) {
			continue
		}
		if !opts.To.IsZero() && day.After(truncateDay(opts.To)) {
			continue
		}
		for _, item := range bucket.Items {
			if opts.Album != nil && !opts.Album.Contains(item.ID) {
				continue
			}
			items = append(items, item)
		}
	}
	return items
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (e *Exporter) writeTar(ctx context.Context, out io.Writer, format Format, items []catalog.Item) (Summary, error) {
	var summary Summary

	var compressor io.WriteCloser
	switch format {
	case FormatTarZst:
		zw, err := zstd.NewWriter(out)
		if err != nil {
			return summary, fmt.Errorf("failed to initialize zstd writer: %w", err)
		}
		compressor = zw
	default:
		compressor = pgzip.NewWriter(out)
	}

	tw := tar.NewWriter(compressor)
	buf := e.bufPool.Get()
	defer e.bufPool.Put(buf)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		written, err := e.addTarEntry(tw, item, *buf)
		if err != nil {
			return summary, err
		}
		summary.Files++
		summary.Bytes += written
	}

	if err := tw.Close(); err != nil {
		return summary, fmt.Errorf("failed to finalize tar stream: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return summary, fmt.Errorf("failed to finalize compression: %w", err)
	}
	return summary, nil
}

func (e *Exporter) addTarEntry(tw *tar.Writer, item catalog.Item, buf []byte) (int64, error) {
	f, err := os.Open(item.AbsPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", item.AbsPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", item.AbsPath, err)
	}
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, err
	}
	header.Name = entryName(item)
	if err := tw.WriteHeader(header); err != nil {
		return 0, err
	}
	written, err := io.CopyBuffer(tw, f, buf)
	if err != nil {
		return written, fmt.Errorf("failed to archive %s: %w", item.AbsPath, err)
	}
	return written, nil
}

func (e *Exporter) writeZip(ctx context.Context, out io.Writer, items []catalog.Item) (Summary, error) {
	var summary Summary

	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.DefaultCompression)
	})

	buf := e.bufPool.Get()
	defer e.bufPool.Put(buf)

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		written, err := e.addZipEntry(zw, item, *buf)
		if err != nil {
			return summary, err
		}
		summary.Files++
		summary.Bytes += written
	}

	if err := zw.Close(); err != nil {
		return summary, fmt.Errorf("failed to finalize zip archive: %w", err)
	}
	return summary, nil
}

func (e *Exporter) addZipEntry(zw *zip.Writer, item catalog.Item, buf []byte) (int64, error) {
	f, err := os.Open(item.AbsPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", item.AbsPath, err)
	}
	defer f.Close()

	header := &zip.FileHeader{
		Name:     entryName(item),
		Method:   zip.Deflate,
		Modified: item.ModifiedAt,
	}
	w, err := zw.CreateHeader(header)
	if err != nil {
		return 0, err
	}
	written, err := io.CopyBuffer(w, f, buf)
	if err != nil {
		return written, fmt.Errorf("failed to archive %s: %w", item.AbsPath, err)
	}
	return written, nil
}

// entryName is the archive-internal path: the date bucket plus the file name,
// matching the remote store layout.
func entryName(item catalog.Item) string {
	return item.DatePath() + "/" + item.RemoteName()
}
