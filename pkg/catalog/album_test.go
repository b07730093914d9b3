package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAlbumAddRemovePhoto(t *testing.T) {
	album := NewAlbum("Holiday", AlbumLocal)

	if !album.AddPhoto("id-1") {
		t.Fatal("first add should succeed")
	}
	if album.AddPhoto("id-1") {
		t.Error("duplicate add should be rejected")
	}
	if !album.Contains("id-1") {
		t.Error("album should contain the added identity")
	}

	album.CoverID = "id-1"
	if !album.RemovePhoto("id-1") {
		t.Fatal("remove should succeed")
	}
	if album.CoverID != "" {
		t.Error("removing the cover photo should clear the cover")
	}
	if album.RemovePhoto("id-1") {
		t.Error("removing an absent identity should report false")
	}
}

func TestAlbumStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := NewAlbumStore(root)

	// Missing file is a normal case.
	albums, err := store.Load()
	if err != nil {
		t.Fatalf("Load with missing file should not error: %v", err)
	}
	if len(albums) != 0 {
		t.Fatalf("expected empty store, got %d albums", len(albums))
	}

	holiday := NewAlbum("Holiday", AlbumCloud)
	holiday.AddPhoto("id-1")
	holiday.AddPhoto("id-2")
	if err := store.Save([]Album{holiday}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected 1 album, got %d", len(loaded))
	}
	if loaded[0].ID != holiday.ID || len(loaded[0].PhotoIDs) != 2 {
		t.Errorf("album not preserved: %+v", loaded[0])
	}
	if loaded[0].Type != AlbumCloud {
		t.Errorf("album type not preserved: %s", loaded[0].Type)
	}
}

func TestAlbumStoreCorruptFileFails(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, AlbumsFileName), []byte("[broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewAlbumStore(root).Load(); err == nil {
		t.Fatal("expected error for corrupt album file")
	}
}

func TestFindAlbum(t *testing.T) {
	a := NewAlbum("Holiday", AlbumLocal)
	b := NewAlbum("Pets", AlbumLocal)
	albums := []Album{a, b}

	if got, ok := Find(albums, "Pets"); !ok || got.ID != b.ID {
		t.Error("expected to find album by name")
	}
	if got, ok := Find(albums, a.ID); !ok || got.Name != "Holiday" {
		t.Error("expected to find album by ID")
	}
	if _, ok := Find(albums, "missing"); ok {
		t.Error("expected lookup miss")
	}
}
