package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixeldrift/photosync/pkg/buildinfo"
	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/remotefs"
	"github.com/pixeldrift/photosync/pkg/util"
)

// ConfigFileName is the name of the configuration file inside the library root.
const ConfigFileName = "photosync.config.json"

// DeviceConfig identifies this installation among the peers sharing a remote.
type DeviceConfig struct {
	// ID is a UUID generated once by 'photosync init'. It keys this device's
	// mapping file on the remote and must never change after the first sync.
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemoteConfig selects and configures the remote store.
type RemoteConfig struct {
	// Backend is one of "local", "webdav" or "s3".
	Backend string `json:"backend"`

	// Root is the mount directory for the local backend.
	Root string `json:"root,omitempty"`

	// WebDAV settings.
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	// SECURITY: The password is stored in plain text. Keep the config file
	// readable only by the owning user, or use an app-specific password.
	Password string `json:"password,omitempty"`

	// S3 settings.
	Bucket          string `json:"bucket,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	UsePathStyle    bool   `json:"usePathStyle,omitempty"`

	// UploadRoot is the directory on the remote under which the media tree
	// and the mapping directory live.
	UploadRoot string `json:"uploadRoot"`

	// CallTimeoutSeconds bounds each remote call. 0 disables the limit.
	CallTimeoutSeconds int `json:"callTimeoutSeconds"`
}

// ScanConfig controls the local media scanner.
type ScanConfig struct {
	// Roots are the directories scanned for media files (camera rolls,
	// import folders). At least one is required.
	Roots []string `json:"roots"`
	// BatchSize is the number of files hashed per scan batch.
	BatchSize int `json:"batchSize"`
	// Workers is the number of concurrent hashing workers.
	Workers int `json:"workers"`
	// LargeFileThresholdMiB is the size at and above which file identity is
	// derived from metadata instead of content. Default is 50.
	LargeFileThresholdMiB int `json:"largeFileThresholdMiB"`
}

// TransferConfig controls the upload/download scheduler.
type TransferConfig struct {
	MaxConcurrent int `json:"maxConcurrent"`
	// HistoryLimit caps the number of completed transfers kept for status
	// reporting.
	HistoryLimit int `json:"historyLimit"`
}

type HooksConfig struct {
	// Note: omitempty is intentionally not used so that the hook fields
	// appear in the generated config file for better discoverability.
	// PreSync is a list of shell commands to execute before a sync run begins.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PreSync []string `json:"preSync"`
	// PostSync is a list of shell commands to execute after a sync run ends.
	// SECURITY: These commands are executed as provided. Ensure they are from a trusted source.
	PostSync []string `json:"postSync"`
}

type Config struct {
	Version     string         `json:"version"`
	LibraryRoot string         `json:"-"` // Never added to config file
	LogLevel    string         `json:"logLevel"`
	AutoSync    bool           `json:"autoSync"`
	Device      DeviceConfig   `json:"device"`
	Remote      RemoteConfig   `json:"remote"`
	Scan        ScanConfig     `json:"scan"`
	Transfer    TransferConfig `json:"transfer"`
	Hooks       HooksConfig    `json:"hooks"`
}

// NewDefault creates and returns a Config struct with sensible default values.
// The device ID is left empty; 'photosync init' provisions it.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		LogLevel: "info", // Default log level.
		AutoSync: false,
		Device: DeviceConfig{
			ID:   "", // Intentionally empty, generated by ProvisionDevice.
			Name: "",
		},
		Remote: RemoteConfig{
			Backend:            "local",
			UploadRoot:         "photosync",
			CallTimeoutSeconds: 300, // Generous per-call limit for large videos.
		},
		Scan: ScanConfig{
			Roots:                 []string{}, // Intentionally empty to force user configuration.
			BatchSize:             20,         // Files hashed per batch.
			Workers:               4,          // Safe for HDDs, decent for SSDs.
			LargeFileThresholdMiB: 50,
		},
		Transfer: TransferConfig{
			MaxConcurrent: 5,
			HistoryLimit:  100,
		},
		Hooks: HooksConfig{
			PreSync:  []string{},
			PostSync: []string{},
		},
	}
}

// Load attempts to load a configuration from the library root.
// If the file doesn't exist, it returns the default config without an error.
// If the file exists but fails to parse, it returns an error and a zero-value config.
func Load(libraryRoot string) (Config, error) {
	absLibraryRoot, err := filepath.Abs(libraryRoot)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for library root %s: %w", libraryRoot, err)
	}

	configPath := filepath.Join(absLibraryRoot, ConfigFileName)

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := NewDefault()
			cfg.LibraryRoot = absLibraryRoot
			return cfg, nil // Config file doesn't exist, which is a normal case.
		}
		return Config{}, fmt.Errorf("error opening config file %s: %w", configPath, err)
	}
	defer file.Close()

	plog.Info("Loading configuration", "path", configPath)
	// Start with default values, then overwrite with the file's content.
	// This makes the config loading resilient to missing fields in the JSON file.
	config := NewDefault()
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return Config{}, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}

	config.LibraryRoot = absLibraryRoot
	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

// Generate creates or overwrites the config file in the library root.
func Generate(configToGenerate Config) error {
	configPath := filepath.Join(configToGenerate.LibraryRoot, ConfigFileName)
	jsonData, err := json.MarshalIndent(configToGenerate, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config to JSON: %w", err)
	}

	if err := os.WriteFile(configPath, jsonData, util.UserWritableFilePerms); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	plog.Info("Successfully saved config file", "path", configPath)
	return nil
}

// ProvisionDevice fills in the device identity if it is not set yet. The ID is
// generated exactly once; re-running init keeps the existing identity.
func (c *Config) ProvisionDevice(name string) {
	if c.Device.ID == "" {
		c.Device.ID = uuid.NewString()
	}
	if name != "" {
		c.Device.Name = name
	}
	if c.Device.Name == "" {
		if hostname, err := os.Hostname(); err == nil {
			c.Device.Name = hostname
		} else {
			c.Device.Name = "device-" + c.Device.ID[:8]
		}
	}
}

// Validate checks the configuration for logical errors and inconsistencies.
// checkDevice additionally requires a provisioned device identity, which only
// commands that touch the remote need.
func (c *Config) Validate(checkDevice bool) error {
	if c.LibraryRoot == "" {
		return fmt.Errorf("library root cannot be empty")
	}

	var err error
	c.LibraryRoot, err = util.ExpandPath(c.LibraryRoot)
	if err != nil {
		return fmt.Errorf("could not expand library root: %w", err)
	}
	c.LibraryRoot = filepath.Clean(c.LibraryRoot)

	if checkDevice {
		if c.Device.ID == "" {
			return fmt.Errorf("device.id is empty, run 'photosync init' first")
		}
		if _, err := uuid.Parse(c.Device.ID); err != nil {
			return fmt.Errorf("device.id is not a valid UUID: %w", err)
		}
	}

	backend, err := remotefs.ParseBackend(c.Remote.Backend)
	if err != nil {
		return err
	}
	switch backend {
	case remotefs.BackendLocal:
		if c.Remote.Root == "" {
			return fmt.Errorf("remote.root cannot be empty for the local backend")
		}
		c.Remote.Root, err = util.ExpandPath(c.Remote.Root)
		if err != nil {
			return fmt.Errorf("could not expand remote.root: %w", err)
		}
	case remotefs.BackendWebDAV:
		if c.Remote.URL == "" {
			return fmt.Errorf("remote.url cannot be empty for the webdav backend")
		}
	case remotefs.BackendS3:
		if c.Remote.Bucket == "" {
			return fmt.Errorf("remote.bucket cannot be empty for the s3 backend")
		}
		if c.Remote.Region == "" && c.Remote.Endpoint == "" {
			return fmt.Errorf("remote.region or remote.endpoint must be set for the s3 backend")
		}
	}

	if c.Remote.UploadRoot == "" {
		return fmt.Errorf("remote.uploadRoot cannot be empty")
	}
	if strings.HasPrefix(c.Remote.UploadRoot, "/") {
		return fmt.Errorf("remote.uploadRoot must be a relative path")
	}
	if c.Remote.CallTimeoutSeconds < 0 {
		return fmt.Errorf("remote.callTimeoutSeconds cannot be negative")
	}

	for i, root := range c.Scan.Roots {
		expanded, err := util.ExpandPath(root)
		if err != nil {
			return fmt.Errorf("could not expand scan root %q: %w", root, err)
		}
		c.Scan.Roots[i] = filepath.Clean(expanded)
	}
	if c.Scan.BatchSize < 1 {
		return fmt.Errorf("scan.batchSize must be at least 1")
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1")
	}
	if c.Scan.LargeFileThresholdMiB < 1 {
		return fmt.Errorf("scan.largeFileThresholdMiB must be at least 1")
	}

	if c.Transfer.MaxConcurrent < 1 {
		return fmt.Errorf("transfer.maxConcurrent must be at least 1")
	}
	if c.Transfer.HistoryLimit < 0 {
		return fmt.Errorf("transfer.historyLimit cannot be negative")
	}

	return nil
}

// RemoteOptions converts the remote section into backend options.
func (c *Config) RemoteOptions() (remotefs.Options, error) {
	backend, err := remotefs.ParseBackend(c.Remote.Backend)
	if err != nil {
		return remotefs.Options{}, err
	}
	return remotefs.Options{
		Backend:  backend,
		Root:     c.Remote.Root,
		URL:      c.Remote.URL,
		Username: c.Remote.Username,
		Password: c.Remote.Password,
		S3: remotefs.S3Options{
			Bucket:          c.Remote.Bucket,
			Region:          c.Remote.Region,
			Prefix:          "",
			Endpoint:        c.Remote.Endpoint,
			AccessKeyID:     c.Remote.AccessKeyID,
			SecretAccessKey: c.Remote.SecretAccessKey,
			UsePathStyle:    c.Remote.UsePathStyle,
		},
		CallTimeout: time.Duration(c.Remote.CallTimeoutSeconds) * time.Second,
	}, nil
}

// LargeFileThresholdBytes returns the identity threshold in bytes.
func (c *Config) LargeFileThresholdBytes() int64 {
	return int64(c.Scan.LargeFileThresholdMiB) * 1024 * 1024
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"log_level", c.LogLevel,
		"library", c.LibraryRoot,
		"device_id", c.Device.ID,
		"device_name", c.Device.Name,
		"remote", c.Remote.Backend,
		"upload_root", c.Remote.UploadRoot,
		"auto_sync", c.AutoSync,
		"scan_workers", c.Scan.Workers,
		"scan_batch_size", c.Scan.BatchSize,
		"large_file_threshold_mib", c.Scan.LargeFileThresholdMiB,
		"max_concurrent_transfers", c.Transfer.MaxConcurrent,
	}
	if len(c.Scan.Roots) > 0 {
		logArgs = append(logArgs, "scan_roots", strings.Join(c.Scan.Roots, ", "))
	}
	if len(c.Hooks.PreSync) > 0 {
		logArgs = append(logArgs, "pre_sync_hooks", strings.Join(c.Hooks.PreSync, "; "))
	}
	if len(c.Hooks.PostSync) > 0 {
		logArgs = append(logArgs, "post_sync_hooks", strings.Join(c.Hooks.PostSync, "; "))
	}
	plog.Info("Configuration loaded", logArgs...)
}
