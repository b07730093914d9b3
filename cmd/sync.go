package cmd

import (
	"errors"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeldrift/photosync/pkg/buildinfo"
	"github.com/pixeldrift/photosync/pkg/catalog"
	"github.com/pixeldrift/photosync/pkg/hook"
	"github.com/pixeldrift/photosync/pkg/identity"
	"github.com/pixeldrift/photosync/pkg/lockfile"
	"github.com/pixeldrift/photosync/pkg/mapping"
	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/remotefs"
	"github.com/pixeldrift/photosync/pkg/syncrun"
	"github.com/pixeldrift/photosync/pkg/transfer"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a full synchronization against the remote store",
		Long: "sync publishes this device's mapping, merges the mappings of all peers,\n" +
			"uploads local media the remote is missing and downloads media other devices\n" +
			"contributed. Individual transfer failures are recorded and retried on the\n" +
			"next run.",
		Args: cobra.NoArgs,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(true); err != nil {
		return err
	}
	cfg.LogSummary()

	opts, err := cfg.RemoteOptions()
	if err != nil {
		return err
	}
	client, err := remotefs.New(ctx, opts)
	if err != nil {
		return err
	}

	// The lock guards the library against a second photosync process; the
	// in-process coordinator guards against concurrent operations within one.
	lock, err := lockfile.Acquire(ctx, cfg.LibraryRoot, cfg.Device.ID)
	if err != nil {
		return err
	}
	defer lock.Release()

	metrics := &transfer.TransferMetrics{}
	runner := syncrun.NewRunner(
		client,
		mapping.NewStore(cfg.LibraryRoot, cfg.Remote.UploadRoot, client),
		catalog.NewScanner(identity.NewHasher(cfg.LargeFileThresholdBytes()), cfg.Scan.BatchSize, cfg.Scan.Workers),
		transfer.NewScheduler(client, cfg.Transfer.MaxConcurrent, cfg.Transfer.HistoryLimit, metrics),
		syncrun.NewCoordinator(),
		hook.NewExecutor(exec.CommandContext),
		syncrun.Options{
			DeviceID:      cfg.Device.ID,
			DeviceName:    cfg.Device.Name,
			LibraryRoot:   cfg.LibraryRoot,
			UploadRoot:    cfg.Remote.UploadRoot,
			MediaRoot:     mediaRoot(cfg),
			ScanRoots:     cfg.Scan.Roots,
			PreSyncHooks:  cfg.Hooks.PreSync,
			PostSyncHooks: cfg.Hooks.PostSync,
		},
	)

	startTime := time.Now()
	metrics.StartProgress("Sync progress", 30*time.Second)
	summary, err := runner.Run(ctx)
	metrics.StopProgress()
	duration := time.Since(startTime).Round(time.Millisecond)

	if err != nil {
		if errors.Is(err, syncrun.ErrFilesFailed) {
			metrics.LogSummary("Synchronization finished with failures")
		}
		return err
	}

	metrics.LogSummary("Synchronization finished")
	plog.Info(buildinfo.Name+" sync finished successfully.",
		"duration", duration,
		"scanned", summary.Scanned,
		"uploaded", summary.Uploaded,
		"downloaded", summary.Downloaded,
		"peers", summary.Peers)
	return nil
}
