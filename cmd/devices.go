package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pixeldrift/photosync/pkg/config"
	"github.com/pixeldrift/photosync/pkg/lockfile"
	"github.com/pixeldrift/photosync/pkg/mapping"
	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/reconcile"
	"github.com/pixeldrift/photosync/pkg/remotefs"
	"github.com/pixeldrift/photosync/pkg/syncrun"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect and manage the devices sharing the remote store",
	}
	cmd.AddCommand(newDevicesListCmd(), newDevicesMergeCmd(), newDevicesRemoveCmd())
	return cmd
}

// newReconciler builds a reconciler for the configured remote, returning the
// lock that must be released when the operation is done.
func newReconciler(cmd *cobra.Command) (*reconcile.Reconciler, *lockfile.Lock, config.Config, error) {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, cfg, err
	}
	if err := cfg.Validate(true); err != nil {
		return nil, nil, cfg, err
	}
	opts, err := cfg.RemoteOptions()
	if err != nil {
		return nil, nil, cfg, err
	}
	client, err := remotefs.New(ctx, opts)
	if err != nil {
		return nil, nil, cfg, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, cfg, err
	}

	lock, err := lockfile.Acquire(ctx, cfg.LibraryRoot, cfg.Device.ID)
	if err != nil {
		return nil, nil, cfg, err
	}

	rec := reconcile.New(
		client,
		mapping.NewStore(cfg.LibraryRoot, cfg.Remote.UploadRoot, client),
		syncrun.NewCoordinator(),
		reconcile.Options{
			DeviceID:   cfg.Device.ID,
			DeviceName: cfg.Device.Name,
			UploadRoot: cfg.Remote.UploadRoot,
			MediaRoot:  mediaRoot(cfg),
		},
	)
	return rec, lock, cfg, nil
}

func newDevicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every device that has published a mapping",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rec, lock, _, err := newReconciler(cmd)
			if err != nil {
				return err
			}
			defer lock.Release()

			infos, err := rec.Devices(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices have published a mapping yet.")
				return nil
			}

			out := cmd.OutOrStdout()
			for _, info := range infos {
				marker := " "
				if info.Self {
					marker = "*"
				}
				name := info.DeviceName
				if name == "" {
					name = "(unknown)"
				}
				updated := "never"
				if !info.LastUpdated.IsZero() {
					updated = info.LastUpdated.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "%s %s  %-20s %5d items  last updated %s\n",
					marker, info.DeviceID, name, info.Entries, updated)
			}
			return nil
		},
	}
}

func newDevicesMergeCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "merge <device-id>",
		Short: "Merge a device's mapping into this one and remove its mapping directory",
		Long: "merge imports every media identity the target device knows and this device\n" +
			"does not, marks them for download on the next sync, and removes the target's\n" +
			"mapping directory. Remote media files are never deleted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetID := args[0]
			if !force && !PromptForConfirmation(
				fmt.Sprintf("Merge device %s into this one and remove its mapping?", targetID), false) {
				plog.Info("Merge canceled.")
				return nil
			}

			rec, lock, _, err := newReconciler(cmd)
			if err != nil {
				return err
			}
			defer lock.Release()

			summary, err := rec.MergeAndRemove(cmd.Context(), targetID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d entries from device %s. Run 'photosync sync' to download them.\n",
				summary.Merged, targetID)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}

func newDevicesRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "remove <device-id>",
		Short: "Delete a device's remote media files and its mapping directory",
		Long: "remove deletes every remote file the target device's mapping references and\n" +
			"then the mapping directory itself. Files that other devices have already\n" +
			"downloaded stay on those devices; use 'devices merge' instead to keep the\n" +
			"remote files.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetID := args[0]
			if !force && !PromptForConfirmation(
				fmt.Sprintf("Permanently delete the remote files of device %s?", targetID), false) {
				plog.Info("Removal canceled.")
				return nil
			}

			rec, lock, _, err := newReconciler(cmd)
			if err != nil {
				return err
			}
			defer lock.Release()

			summary, err := rec.RemoveDevice(cmd.Context(), targetID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed device %s: %d files deleted, %d failed.\n",
				targetID, summary.FilesDeleted, summary.FilesFailed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "skip the confirmation prompt")
	return cmd
}
