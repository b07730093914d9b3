package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pixeldrift/photosync/pkg/util"
)

// AlbumsFileName is the name of the album document inside the library root.
const AlbumsFileName = "photosync.albums.json"

// AlbumType distinguishes purely local albums from albums mirrored on the
// remote store.
type AlbumType string

const (
	AlbumLocal AlbumType = "local"
	AlbumCloud AlbumType = "cloud"
)

// Album is an ordered collection of media identities. Albums hold weak
// references: removing an identity from an album never touches media files.
type Album struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        AlbumType `json:"type"`
	// PhotoIDs are media identities in user-chosen order.
	PhotoIDs []string `json:"photoIds"`
	// CoverID is the identity of the cover item, empty for the default cover.
	CoverID string `json:"coverId,omitempty"`
	// IsSynced reports whether every item of a cloud album has been uploaded.
	IsSynced bool `json:"isSynced"`
	// PendingCloudPhotos counts items of a cloud album not yet uploaded.
	PendingCloudPhotos int       `json:"pendingCloudPhotos"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NewAlbum creates an empty album with a fresh ID.
func NewAlbum(name string, albumType AlbumType) Album {
	now := time.Now().UTC()
	return Album{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      albumType,
		PhotoIDs:  []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddPhoto appends an identity, keeping the list duplicate-free. It reports
// whether the identity was added.
func (a *Album) AddPhoto(id string) bool {
	for _, existing := range a.PhotoIDs {
		if existing == id {
			return false
		}
	}
	a.PhotoIDs = append(a.PhotoIDs, id)
	a.UpdatedAt = time.Now().UTC()
	return true
}

// RemovePhoto drops an identity from the album. It reports whether the
// identity was present.
func (a *Album) RemovePhoto(id string) bool {
	for i, existing := range a.PhotoIDs {
		if existing == id {
			a.PhotoIDs = append(a.PhotoIDs[:i], a.PhotoIDs[i+1:]...)
			if a.CoverID == id {
				a.CoverID = ""
			}
			a.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// Contains reports whether the album references the identity.
func (a *Album) Contains(id string) bool {
	for _, existing := range a.PhotoIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// AlbumStore persists albums as a single JSON document in the library root.
type AlbumStore struct {
	path string
}

// NewAlbumStore creates a store for the given library root.
func NewAlbumStore(libraryRoot string) *AlbumStore {
	return &AlbumStore{path: filepath.Join(libraryRoot, AlbumsFileName)}
}

// Load reads all albums. A missing document is a normal case and returns an
// empty slice.
func (s *AlbumStore) Load() ([]Album, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Album{}, nil
		}
		return nil, fmt.Errorf("failed to read album file %s: %w", s.path, err)
	}

	var albums []Album
	if err := json.Unmarshal(data, &albums); err != nil {
		return nil, fmt.Errorf("failed to parse album file %s: %w", s.path, err)
	}
	return albums, nil
}

// Save writes all albums atomically via temp file and rename.
func (s *AlbumStore) Save(albums []Album) error {
	data, err := json.MarshalIndent(albums, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal albums: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmpF, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp album file: %w", err)
	}
	tmpPath := tmpF.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to write temp album file: %w", err)
	}
	if err := tmpF.Chmod(util.UserWritableFilePerms); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to chmod temp album file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp album file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace album file: %w", err)
	}
	tmpPath = ""
	return nil
}

// Find returns the album with the given ID or name.
func Find(albums []Album, idOrName string) (Album, bool) {
	for _, album := range albums {
		if album.ID == idOrName || album.Name == idOrName {
			return album, true
		}
	}
	return Album{}, false
}
