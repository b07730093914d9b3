// Package catalog models the local media library: scanned media items, the
// date-bucketed index the UI renders, and user albums.
package catalog

import (
	"path/filepath"
	"strings"
	"time"
)

// MediaType classifies an item by its file extension.
type MediaType string

const (
	TypeImage   MediaType = "image"
	TypeVideo   MediaType = "video"
	TypeUnknown MediaType = "unknown"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".heic": true, ".heif": true, ".webp": true, ".bmp": true,
	".tif": true, ".tiff": true, ".dng": true, ".cr2": true,
	".nef": true, ".arw": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".webm": true, ".m4v": true, ".3gp": true, ".mts": true,
}

// ClassifyExtension maps a file extension (with or without the leading dot)
// to a media type.
func ClassifyExtension(ext string) MediaType {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	switch {
	case imageExtensions[ext]:
		return TypeImage
	case videoExtensions[ext]:
		return TypeVideo
	default:
		return TypeUnknown
	}
}

// Item is one scanned media file. Items are immutable once constructed and
// re-derived on every scan.
type Item struct {
	// ID is the content identity. See pkg/identity for how it is derived.
	ID      string
	AbsPath string
	Name    string
	Ext     string
	Size    int64
	Type    MediaType
	// CreatedAt drives the date bucketing. Portable filesystems expose no
	// reliable birth time, so the modification time stands in for it.
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// DatePath returns the calendar-day bucket key for the item, e.g. "2026/08/26".
// The same key doubles as the item's directory on the remote store.
func (i Item) DatePath() string {
	return i.CreatedAt.Format("2006/01/02")
}

// IsMedia reports whether the item is an image or a video.
func (i Item) IsMedia() bool {
	return i.Type == TypeImage || i.Type == TypeVideo
}

// RemoteName returns the file name the item is stored under on the remote.
func (i Item) RemoteName() string {
	return filepath.Base(i.AbsPath)
}
