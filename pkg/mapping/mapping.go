// Package mapping holds the per-device cloud mapping document: the durable
// record of what this device knows to be synced. The local copy is the source
// of truth; a mirror is published to the remote store so peers can merge it.
package mapping

import (
	"encoding/json"
	"time"

	"github.com/pixeldrift/photosync/pkg/catalog"
)

// SchemaVersion is the current mapping document schema. Decoding is tolerant:
// unknown fields are ignored and missing fields keep their zero defaults, so
// older and newer documents interoperate.
const SchemaVersion = 1

// SyncStatus is the per-item sync state.
type SyncStatus string

const (
	StatusSynced          SyncStatus = "synced"
	StatusPendingUpload   SyncStatus = "pendingUpload"
	StatusPendingDownload SyncStatus = "pendingDownload"
	StatusFailed          SyncStatus = "failed"
)

// UnmarshalJSON decodes a status, mapping values outside the known set to
// failed. Treating an unrecognized state as failed makes the next run retry
// the item instead of silently trusting it.
func (s *SyncStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch SyncStatus(raw) {
	case StatusSynced, StatusPendingUpload, StatusPendingDownload, StatusFailed:
		*s = SyncStatus(raw)
	default:
		*s = StatusFailed
	}
	return nil
}

// MediaMapping is one media item's sync record. Owned by exactly one
// DeviceMapping.
type MediaMapping struct {
	MediaID    string            `json:"mediaId"`
	LocalPath  string            `json:"localPath"`
	CloudPath  string            `json:"cloudPath"`
	MediaType  catalog.MediaType `json:"mediaType"`
	Size       int64             `json:"size"`
	CreatedAt  time.Time         `json:"createdAt"`
	LastSynced time.Time         `json:"lastSynced,omitempty"`
	SyncStatus SyncStatus        `json:"syncStatus"`
	// LastError records why the most recent transfer failed, empty otherwise.
	LastError string `json:"lastError,omitempty"`
}

// DeviceMapping is the full mapping document of one device.
type DeviceMapping struct {
	SchemaVersion int            `json:"schemaVersion"`
	DeviceID      string         `json:"deviceId"`
	DeviceName    string         `json:"deviceName"`
	LastUpdated   time.Time      `json:"lastUpdated"`
	Mappings      []MediaMapping `json:"mappings"`

	// byID indexes Mappings by media identity. Rebuilt on load.
	byID map[string]int
}

// New creates an empty mapping document for a device.
func New(deviceID, deviceName string) *DeviceMapping {
	return &DeviceMapping{
		SchemaVersion: SchemaVersion,
		DeviceID:      deviceID,
		DeviceName:    deviceName,
		Mappings:      []MediaMapping{},
		byID:          make(map[string]int),
	}
}

// rebuildIndex recreates the identity index from the Mappings slice. When the
// document contains duplicate identities (hand-edited or produced by an older
// version), the later entry wins and earlier ones are dropped.
func (m *DeviceMapping) rebuildIndex() {
	m.byID = make(map[string]int, len(m.Mappings))
	deduped := m.Mappings[:0]
	for _, entry := range m.Mappings {
		if i, ok := m.byID[entry.MediaID]; ok {
			deduped[i] = entry
			continue
		}
		m.byID[entry.MediaID] = len(deduped)
		deduped = append(deduped, entry)
	}
	m.Mappings = deduped
}

// AddOrUpdate inserts the entry, replacing any existing entry with the same
// identity. No two entries ever share an identity.
func (m *DeviceMapping) AddOrUpdate(entry MediaMapping) {
	if m.byID == nil {
		m.rebuildIndex()
	}
	if i, ok := m.byID[entry.MediaID]; ok {
		m.Mappings[i] = entry
		return
	}
	m.byID[entry.MediaID] = len(m.Mappings)
	m.Mappings = append(m.Mappings, entry)
}

// Get returns the entry for an identity.
func (m *DeviceMapping) Get(mediaID string) (MediaMapping, bool) {
	if m.byID == nil {
		m.rebuildIndex()
	}
	i, ok := m.byID[mediaID]
	if !ok {
		return MediaMapping{}, false
	}
	return m.Mappings[i], true
}

// Has reports whether the identity is known to this device.
func (m *DeviceMapping) Has(mediaID string) bool {
	_, ok := m.Get(mediaID)
	return ok
}

// SetStatus updates the sync state of one entry. It reports whether the
// identity was found.
func (m *DeviceMapping) SetStatus(mediaID string, status SyncStatus, at time.Time) bool {
	if m.byID == nil {
		m.rebuildIndex()
	}
	i, ok := m.byID[mediaID]
	if !ok {
		return false
	}
	m.Mappings[i].SyncStatus = status
	if status == StatusSynced {
		m.Mappings[i].LastSynced = at
		m.Mappings[i].LastError = ""
	}
	return true
}

// SetFailed marks one entry failed and records the reason.
func (m *DeviceMapping) SetFailed(mediaID string, reason string) bool {
	if m.byID == nil {
		m.rebuildIndex()
	}
	i, ok := m.byID[mediaID]
	if !ok {
		return false
	}
	m.Mappings[i].SyncStatus = StatusFailed
	m.Mappings[i].LastError = reason
	return true
}

// Len returns the number of entries.
func (m *DeviceMapping) Len() int {
	return len(m.Mappings)
}

// CountByStatus tallies entries per sync state.
func (m *DeviceMapping) CountByStatus() map[SyncStatus]int {
	counts := make(map[SyncStatus]int)
	for _, entry := range m.Mappings {
		counts[entry.SyncStatus]++
	}
	return counts
}
