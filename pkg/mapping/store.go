package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/remotefs"
	"github.com/pixeldrift/photosync/pkg/util"
)

const (
	// LocalFileName is the mapping document inside the library root.
	LocalFileName = "photosync.mapping.json"
	// RemoteFileName is the per-device document name on the remote store.
	RemoteFileName = "mapping.json"
	// MappingsDirName is the remote directory holding one subdirectory per
	// device.
	MappingsDirName = ".mappings"
	// historyDirName holds compressed snapshots of superseded local documents.
	historyDirName = "mapping.history"

	// DefaultHistoryLimit caps the number of kept snapshots.
	DefaultHistoryLimit = 10
)

// Store persists the local mapping document and mirrors it to the remote.
type Store struct {
	libraryRoot  string
	uploadRoot   string
	client       remotefs.Client
	historyLimit int
}

// NewStore creates a store. uploadRoot is the remote directory under which
// media and the mappings directory live.
func NewStore(libraryRoot, uploadRoot string, client remotefs.Client) *Store {
	return &Store{
		libraryRoot:  libraryRoot,
		uploadRoot:   uploadRoot,
		client:       client,
		historyLimit: DefaultHistoryLimit,
	}
}

func (s *Store) localPath() string {
	return filepath.Join(s.libraryRoot, LocalFileName)
}

// RemoteDir returns the remote mapping directory of a device.
func (s *Store) RemoteDir(deviceID string) string {
	return util.JoinRemote(s.uploadRoot, MappingsDirName, deviceID)
}

// RemotePath returns the remote mapping document path of a device.
func (s *Store) RemotePath(deviceID string) string {
	return util.JoinRemote(s.RemoteDir(deviceID), RemoteFileName)
}

// Load reads the local mapping document. A missing document is a normal case
// and yields a new empty mapping for this device. A corrupt document is fatal:
// the local source of truth must never be silently discarded.
func (s *Store) Load(deviceID, deviceName string) (*DeviceMapping, error) {
	data, err := os.ReadFile(s.localPath())
	if err != nil {
		if os.IsNotExist(err) {
			plog.Debug("No local mapping document, starting empty", "device_id", deviceID)
			return New(deviceID, deviceName), nil
		}
		return nil, fmt.Errorf("failed to read mapping document %s: %w", s.localPath(), err)
	}

	doc, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("local mapping document %s is corrupt, refusing to overwrite it: %w", s.localPath(), err)
	}

	// The document follows the configured identity, not the other way round.
	doc.DeviceID = deviceID
	if deviceName != "" {
		doc.DeviceName = deviceName
	}
	return doc, nil
}

// Save writes the document atomically via temp file and rename. The previous
// document, if any, is archived as a zstd-compressed history snapshot first.
func (s *Store) Save(doc *DeviceMapping) error {
	doc.SchemaVersion = SchemaVersion
	doc.LastUpdated = time.Now().UTC()

	if err := s.archivePrevious(); err != nil {
		// History is best-effort, losing a snapshot must not block the save.
		plog.Warn("Failed to archive previous mapping document", "error", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping document: %w", err)
	}

	tmpF, err := os.CreateTemp(s.libraryRoot, LocalFileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp mapping file: %w", err)
	}
	tmpPath := tmpF.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to write temp mapping file: %w", err)
	}
	if err := tmpF.Chmod(util.UserWritableFilePerms); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to chmod temp mapping file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to close temp mapping file: %w", err)
	}
	if err := os.Rename(tmpPath, s.localPath()); err != nil {
		return fmt.Errorf("failed to replace mapping document: %w", err)
	}
	tmpPath = ""

	plog.Debug("Saved local mapping document", "path", s.localPath(), "entries", doc.Len())
	return nil
}

// Publish uploads the local document to the device's remote mapping path,
// creating the directory first.
func (s *Store) Publish(ctx context.Context, doc *DeviceMapping) error {
	if err := s.client.Mkdir(ctx, s.RemoteDir(doc.DeviceID)); err != nil {
		return fmt.Errorf("failed to create remote mapping directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping document: %w", err)
	}

	// The remote client uploads from a file, so stage the bytes in a temp one.
	tmpF, err := os.CreateTemp("", "photosync-mapping-*.json")
	if err != nil {
		return fmt.Errorf("failed to stage mapping upload: %w", err)
	}
	tmpPath := tmpF.Name()
	defer os.Remove(tmpPath)

	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		return fmt.Errorf("failed to stage mapping upload: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		return fmt.Errorf("failed to stage mapping upload: %w", err)
	}

	if err := s.client.Upload(ctx, s.RemotePath(doc.DeviceID), tmpPath); err != nil {
		return fmt.Errorf("failed to publish mapping for device %s: %w", doc.DeviceID, err)
	}
	plog.Debug("Published mapping document", "device_id", doc.DeviceID, "entries", doc.Len())
	return nil
}

// FetchPeer downloads and parses a peer's mapping document. A missing peer
// document surfaces as a NotFound-kind error. A document that downloads but
// does not parse is treated as empty with a warning: a peer's corruption must
// not block this device's run.
func (s *Store) FetchPeer(ctx context.Context, deviceID string) (*DeviceMapping, error) {
	tmpF, err := os.CreateTemp("", "photosync-peer-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to stage peer mapping download: %w", err)
	}
	tmpPath := tmpF.Name()
	tmpF.Close()
	defer os.Remove(tmpPath)

	if err := s.client.Download(ctx, s.RemotePath(deviceID), tmpPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read fetched peer mapping: %w", err)
	}

	doc, err := decode(data)
	if err != nil {
		plog.Warn("Peer mapping document is corrupt, treating as empty", "device_id", deviceID, "error", err)
		return New(deviceID, ""), nil
	}
	return doc, nil
}

// ListPeers enumerates the device IDs that have a mapping directory on the
// remote, excluding this device. A missing mappings directory means no peer
// has published yet.
func (s *Store) ListPeers(ctx context.Context, selfDeviceID string) ([]string, error) {
	entries, err := s.client.List(ctx, util.JoinRemote(s.uploadRoot, MappingsDirName))
	if err != nil {
		if remotefs.IsNotFound(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list peer mappings: %w", err)
	}

	peers := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir || entry.Name == selfDeviceID {
			continue
		}
		peers = append(peers, entry.Name)
	}
	sort.Strings(peers)
	return peers, nil
}

// decode parses a mapping document and rebuilds its identity index.
func decode(data []byte) (*DeviceMapping, error) {
	var doc DeviceMapping
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Mappings == nil {
		doc.Mappings = []MediaMapping{}
	}
	doc.rebuildIndex()
	return &doc, nil
}

// archivePrevious compresses the current on-disk document into the history
// directory and prunes the oldest snapshots beyond the limit.
func (s *Store) archivePrevious() error {
	data, err := os.ReadFile(s.localPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	historyDir := filepath.Join(s.libraryRoot, historyDirName)
	if err := os.MkdirAll(historyDir, util.UserWritableDirPerms); err != nil {
		return err
	}

	name := time.Now().UTC().Format("20060102T150405.000000000") + ".json.zst"
	f, err := os.Create(filepath.Join(historyDir, name))
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	s.pruneHistory(historyDir)
	return nil
}

// pruneHistory removes the oldest snapshots above the limit. The timestamped
// names sort chronologically.
func (s *Store) pruneHistory(historyDir string) {
	matches, err := filepath.Glob(filepath.Join(historyDir, "*.json.zst"))
	if err != nil || len(matches) <= s.historyLimit {
		return
	}
	sort.Strings(matches)
	for _, path := range matches[:len(matches)-s.historyLimit] {
		if err := os.Remove(path); err != nil {
			plog.Warn("Failed to prune mapping history snapshot", "path", path, "error", err)
		}
	}
}
