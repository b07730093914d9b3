package export

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/pixeldrift/photosync/pkg/catalog"
	"github.com/pixeldrift/photosync/pkg/hints"
)

func mkItem(t *testing.T, dir, name, content string, day time.Time) catalog.Item {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return catalog.Item{
		ID:         name + "-id",
		AbsPath:    path,
		Name:       name,
		Ext:        filepath.Ext(name),
		Size:       int64(len(content)),
		Type:       catalog.TypeImage,
		CreatedAt:  day,
		ModifiedAt: day,
	}
}

func buildIndex(items ...catalog.Item) *catalog.Index {
	index := catalog.NewIndex()
	for _, item := range items {
		index.Add(item)
	}
	return index
}

func readTarEntries(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	entries := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatal(err)
		}
		entries[header.Name] = string(data)
	}
	return entries
}

func TestExportTarGz(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	index := buildIndex(
		mkItem(t, dir, "a.jpg", "alpha", day),
		mkItem(t, dir, "b.mp4", "bravo", day),
	)

	dst := filepath.Join(t.TempDir(), "out.tar.gz")
	summary, err := NewExporter().Export(context.Background(), index, dst, FormatTarGz, Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if summary.Files != 2 || summary.Bytes != 10 {
		t.Errorf("summary = %+v, want 2 files / 10 bytes", summary)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	entries := readTarEntries(t, gz)
	if entries["2026/08/20/a.jpg"] != "alpha" || entries["2026/08/20/b.mp4"] != "bravo" {
		t.Errorf("unexpected archive entries: %v", entries)
	}
}

func TestExportTarZst(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
	index := buildIndex(mkItem(t, dir, "c.png", "charlie", day))

	dst := filepath.Join(t.TempDir(), "out.tar.zst")
	if _, err := NewExporter().Export(context.Background(), index, dst, FormatTarZst, Options{}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	entries := readTarEntries(t, zr)
	if entries["2026/08/21/c.png"] != "charlie" {
		t.Errorf("unexpected archive entries: %v", entries)
	}
}

func TestExportZip(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 8, 22, 9, 0, 0, 0, time.UTC)
	index := buildIndex(mkItem(t, dir, "d.heic", "delta", day))

	dst := filepath.Join(t.TempDir(), "out.zip")
	if _, err := NewExporter().Export(context.Background(), index, dst, FormatZip, Options{}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	zr, err := zip.OpenReader(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	if len(zr.File) != 1 || zr.File[0].Name != "2026/08/22/d.heic" {
		t.Fatalf("unexpected zip contents: %v", zr.File)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil || string(data) != "delta" {
		t.Errorf("entry content = %q (%v), want delta", data, err)
	}
}

func TestExportDateFilter(t *testing.T) {
	dir := t.TempDir()
	index := buildIndex(
		mkItem(t, dir, "old.jpg", "old", time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)),
		mkItem(t, dir, "new.jpg", "new", time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)),
	)

	dst := filepath.Join(t.TempDir(), "filtered.tar.gz")
	summary, err := NewExporter().Export(context.Background(), index, dst, FormatTarGz, Options{
		From: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if summary.Files != 1 {
		t.Errorf("exported %d files, want 1", summary.Files)
	}

	f, err := os.Open(dst)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	entries := readTarEntries(t, gz)
	if _, ok := entries["2026/07/01/old.jpg"]; ok {
		t.Error("item outside the date range was exported")
	}
	if _, ok := entries["2026/08/15/new.jpg"]; !ok {
		t.Error("item inside the date range is missing")
	}
}

func TestExportAlbumFilter(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 8, 23, 0, 0, 0, 0, time.UTC)
	in := mkItem(t, dir, "member.jpg", "member", day)
	out := mkItem(t, dir, "other.jpg", "other", day)
	index := buildIndex(in, out)

	album := catalog.NewAlbum("Holiday", catalog.AlbumLocal)
	album.AddPhoto(in.ID)

	dst := filepath.Join(t.TempDir(), "album.zip")
	summary, err := NewExporter().Export(context.Background(), index, dst, FormatZip, Options{Album: &album})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if summary.Files != 1 {
		t.Errorf("exported %d files, want 1", summary.Files)
	}
}

func TestExportNothingMatched(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "empty.tar.gz")
	_, err := NewExporter().Export(context.Background(), catalog.NewIndex(), dst, FormatTarGz, Options{})
	if !errors.Is(err, ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
	if !hints.IsHint(err) {
		t.Error("ErrNoItems should be a hint")
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Error("destination file was created for an empty export")
	}
}

func TestExportLeavesNoTempOnFailure(t *testing.T) {
	dir := t.TempDir()
	item := mkItem(t, dir, "gone.jpg", "gone", time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC))
	if err := os.Remove(item.AbsPath); err != nil {
		t.Fatal(err)
	}
	index := buildIndex(item)

	outDir := t.TempDir()
	dst := filepath.Join(outDir, "broken.tar.gz")
	if _, err := NewExporter().Export(context.Background(), index, dst, FormatTarGz, Options{}); err == nil {
		t.Fatal("expected error for missing source file")
	}

	leftovers, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"tar.gz": FormatTarGz,
		"TGZ":    FormatTarGz,
		"zst":    FormatTarZst,
		"zip":    FormatZip,
	}
	for input, want := range cases {
		got, err := ParseFormat(input)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseFormat("rar"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"backup.tar.gz":     FormatTarGz,
		"Backup.TGZ":        FormatTarGz,
		"media.tar.zst":     FormatTarZst,
		"photos.zip":        FormatZip,
		"nested/photos.zip": FormatZip,
	}
	for input, want := range cases {
		got, err := DetectFormat(input)
		if err != nil || got != want {
			t.Errorf("DetectFormat(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	_, err := DetectFormat("media.bin")
	if err == nil {
		t.Fatal("expected error for unknown extension")
	}
	if !strings.Contains(err.Error(), "media.bin") {
		t.Error("error should name the destination")
	}
}
