package mapping

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pixeldrift/photosync/pkg/catalog"
)

func entry(id string, status SyncStatus) MediaMapping {
	return MediaMapping{
		MediaID:    id,
		LocalPath:  "/media/" + id + ".jpg",
		CloudPath:  "photos/2026/01/01/" + id + ".jpg",
		MediaType:  catalog.TypeImage,
		Size:       100,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SyncStatus: status,
	}
}

func TestAddOrUpdateKeepsIdentitiesUnique(t *testing.T) {
	doc := New("dev-1", "laptop")

	doc.AddOrUpdate(entry("a", StatusPendingUpload))
	doc.AddOrUpdate(entry("b", StatusPendingUpload))
	doc.AddOrUpdate(entry("a", StatusSynced))

	if doc.Len() != 2 {
		t.Fatalf("expected 2 entries after replacing a duplicate, got %d", doc.Len())
	}
	got, ok := doc.Get("a")
	if !ok || got.SyncStatus != StatusSynced {
		t.Errorf("expected replaced entry to win, got %+v", got)
	}
}

func TestSetStatusAndSetFailed(t *testing.T) {
	doc := New("dev-1", "laptop")
	doc.AddOrUpdate(entry("a", StatusPendingUpload))

	now := time.Now().UTC()
	if !doc.SetStatus("a", StatusSynced, now) {
		t.Fatal("SetStatus should find the entry")
	}
	got, _ := doc.Get("a")
	if got.SyncStatus != StatusSynced || !got.LastSynced.Equal(now) {
		t.Errorf("unexpected entry after SetStatus: %+v", got)
	}

	if !doc.SetFailed("a", "upload: connection reset") {
		t.Fatal("SetFailed should find the entry")
	}
	got, _ = doc.Get("a")
	if got.SyncStatus != StatusFailed || got.LastError == "" {
		t.Errorf("unexpected entry after SetFailed: %+v", got)
	}

	// Returning to synced clears the recorded error.
	doc.SetStatus("a", StatusSynced, now)
	got, _ = doc.Get("a")
	if got.LastError != "" {
		t.Error("recovery should clear the last error")
	}

	if doc.SetStatus("missing", StatusSynced, now) {
		t.Error("SetStatus on an unknown identity should report false")
	}
}

func TestUnknownSyncStatusDecodesAsFailed(t *testing.T) {
	raw := []byte(`{
		"schemaVersion": 7,
		"deviceId": "dev-9",
		"mappings": [
			{"mediaId": "a", "syncStatus": "synced"},
			{"mediaId": "b", "syncStatus": "uploading"},
			{"mediaId": "c", "syncStatus": ""}
		]
	}`)

	doc, err := decode(raw)
	if err != nil {
		t.Fatalf("tolerant decode failed: %v", err)
	}

	a, _ := doc.Get("a")
	if a.SyncStatus != StatusSynced {
		t.Errorf("known status mangled: %s", a.SyncStatus)
	}
	for _, id := range []string{"b", "c"} {
		got, _ := doc.Get(id)
		if got.SyncStatus != StatusFailed {
			t.Errorf("entry %s: unknown status should decode as failed, got %s", id, got.SyncStatus)
		}
	}
}

func TestDecodeDeduplicatesEntries(t *testing.T) {
	raw := []byte(`{
		"deviceId": "dev-1",
		"mappings": [
			{"mediaId": "a", "syncStatus": "pendingUpload"},
			{"mediaId": "a", "syncStatus": "synced"}
		]
	}`)

	doc, err := decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Len() != 1 {
		t.Fatalf("expected duplicates collapsed to 1 entry, got %d", doc.Len())
	}
	got, _ := doc.Get("a")
	if got.SyncStatus != StatusSynced {
		t.Errorf("later duplicate should win, got %s", got.SyncStatus)
	}
}

func TestCountByStatus(t *testing.T) {
	doc := New("dev-1", "laptop")
	doc.AddOrUpdate(entry("a", StatusSynced))
	doc.AddOrUpdate(entry("b", StatusSynced))
	doc.AddOrUpdate(entry("c", StatusPendingDownload))

	counts := doc.CountByStatus()
	if counts[StatusSynced] != 2 || counts[StatusPendingDownload] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestDocumentRoundTripsThroughJSON(t *testing.T) {
	doc := New("dev-1", "laptop")
	doc.AddOrUpdate(entry("a", StatusSynced))

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	back, err := decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.DeviceID != "dev-1" || back.Len() != 1 {
		t.Errorf("round trip lost data: %+v", back)
	}
}
