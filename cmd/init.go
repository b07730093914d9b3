package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pixeldrift/photosync/pkg/buildinfo"
	"github.com/pixeldrift/photosync/pkg/config"
	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/preflight"
	"github.com/pixeldrift/photosync/pkg/util"
)

func newInitCmd() *cobra.Command {
	var (
		name       string
		backend    string
		remoteRoot string
		url        string
		username   string
		password   string
		bucket     string
		region     string
		endpoint   string
		uploadRoot string
		scanRoots  []string
		useDefault bool
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or update the library configuration and provision the device identity",
		Long: "init writes " + config.ConfigFileName + " into the library root and generates the\n" +
			"device identity on first run. Re-running init updates settings from the given\n" +
			"flags but never changes an existing device id.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			library, err := cmd.Flags().GetString("library")
			if err != nil {
				return err
			}
			absLibrary, err := filepath.Abs(library)
			if err != nil {
				return fmt.Errorf("could not determine absolute library path for %s: %w", library, err)
			}

			var cfg config.Config
			if useDefault {
				configPath := filepath.Join(absLibrary, config.ConfigFileName)
				if _, err := os.Stat(configPath); err == nil && !force {
					fmt.Printf("WARNING: Configuration file already exists at %s.\n", configPath)
					fmt.Printf("Using --default will overwrite it with default values. All custom settings will be lost.\n")
					if !PromptForConfirmation("Are you sure you want to continue?", false) {
						plog.Info(buildinfo.Name + " init canceled.")
						return nil
					}
				}
				cfg = config.NewDefault()
				cfg.LibraryRoot = absLibrary
			} else {
				cfg, err = config.Load(absLibrary)
				if err != nil {
					plog.Warn("Could not load existing configuration, starting with defaults.", "reason", err)
					cfg = config.NewDefault()
					cfg.LibraryRoot = absLibrary
				}
			}

			if backend != "" {
				cfg.Remote.Backend = backend
			}
			if remoteRoot != "" {
				cfg.Remote.Root = remoteRoot
			}
			if url != "" {
				cfg.Remote.URL = url
			}
			if username != "" {
				cfg.Remote.Username = username
			}
			if password != "" {
				cfg.Remote.Password = password
			}
			if bucket != "" {
				cfg.Remote.Bucket = bucket
			}
			if region != "" {
				cfg.Remote.Region = region
			}
			if endpoint != "" {
				cfg.Remote.Endpoint = endpoint
			}
			if uploadRoot != "" {
				cfg.Remote.UploadRoot = uploadRoot
			}
			if len(scanRoots) > 0 {
				cfg.Scan.Roots = util.MergeAndDeduplicate(cfg.Scan.Roots, scanRoots)
			}

			cfg.ProvisionDevice(name)

			if err := preflight.CheckLibraryAccessible(cfg.LibraryRoot); err != nil {
				return fmt.Errorf("initialization preflight failed: %w", err)
			}

			// An incomplete configuration is still written; the user finishes
			// it by editing the file or re-running init with more flags.
			if err := cfg.Validate(true); err != nil {
				plog.Warn("Configuration is not complete yet", "reason", err)
			}

			if err := config.Generate(cfg); err != nil {
				return fmt.Errorf("failed to generate config file: %w", err)
			}
			plog.Info(buildinfo.Name+" library initialized.",
				"library", cfg.LibraryRoot,
				"device_id", cfg.Device.ID,
				"device_name", cfg.Device.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "human-readable device name (defaults to the hostname)")
	cmd.Flags().StringVar(&backend, "backend", "", "remote backend: local, webdav or s3")
	cmd.Flags().StringVar(&remoteRoot, "remote-root", "", "mount directory for the local backend")
	cmd.Flags().StringVar(&url, "url", "", "WebDAV server URL")
	cmd.Flags().StringVar(&username, "username", "", "WebDAV username")
	cmd.Flags().StringVar(&password, "password", "", "WebDAV password")
	cmd.Flags().StringVar(&bucket, "bucket", "", "S3 bucket name")
	cmd.Flags().StringVar(&region, "region", "", "S3 region")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "S3 endpoint for non-AWS object stores")
	cmd.Flags().StringVar(&uploadRoot, "upload-root", "", "remote directory for media and mappings")
	cmd.Flags().StringArrayVar(&scanRoots, "scan-root", nil, "local directory to scan for media (repeatable)")
	cmd.Flags().BoolVar(&useDefault, "default", false, "reset the configuration to defaults")
	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt for --default")
	return cmd
}
