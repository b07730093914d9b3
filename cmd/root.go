// Package cmd wires the photosync command-line interface.
package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pixeldrift/photosync/pkg/config"
	"github.com/pixeldrift/photosync/pkg/plog"
)

// Execute runs the root command with the given context. The context is
// cancelled on SIGINT/SIGTERM by the caller.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the photosync command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "photosync",
		Short: "Synchronize photo and video libraries across devices",
		Long: "photosync converges the media libraries of multiple devices through a shared\n" +
			"remote store (a local mount, WebDAV server or S3 bucket). Each device publishes\n" +
			"a mapping of what it holds, merges the mappings of its peers and transfers\n" +
			"whatever is missing on either side.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if level, _ := cmd.Flags().GetString("log-level"); level != "" {
				plog.SetLevel(plog.LevelFromString(level))
			}
			quiet, _ := cmd.Flags().GetBool("quiet")
			plog.SetQuiet(quiet)
		},
	}

	root.PersistentFlags().String("library", ".", "library root directory holding configuration and sync state")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, notice, warn, error); overrides the configured level")
	root.PersistentFlags().Bool("quiet", false, "suppress informational output; notices, warnings and errors still pass")

	root.AddCommand(
		newInitCmd(),
		newSyncCmd(),
		newScanCmd(),
		newDevicesCmd(),
		newAlbumCmd(),
		newExportCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads and returns the configuration for the library selected by
// the --library flag. The configured log level applies unless --log-level
// overrode it.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	library, err := cmd.Flags().GetString("library")
	if err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(library)
	if err != nil {
		return config.Config{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level == "" {
		plog.SetLevel(plog.LevelFromString(cfg.LogLevel))
	}
	return cfg, nil
}

// mediaRoot is where downloaded media lands: the first scan root, or a
// "media" directory inside the library when no scan roots are configured.
func mediaRoot(cfg config.Config) string {
	if len(cfg.Scan.Roots) > 0 {
		return cfg.Scan.Roots[0]
	}
	return filepath.Join(cfg.LibraryRoot, "media")
}

// PromptForConfirmation prompts the user for a yes/no response.
func PromptForConfirmation(prompt string, defaultYes bool) bool {
	suffix := "[y/N]"
	if defaultYes {
		suffix = "[Y/n]"
	}
	fmt.Printf("%s %s: ", prompt, suffix)

	var response string
	_, _ = fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}
