// Package reconcile implements the device-management operations on the shared
// remote store: removing a device's footprint, and merging a departing
// device's mapping into the local one before removing it.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pixeldrift/photosync/pkg/mapping"
	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/remotefs"
	"github.com/pixeldrift/photosync/pkg/syncrun"
	"github.com/pixeldrift/photosync/pkg/util"
)

// DefaultDeleteWorkers bounds the parallel remote deletes during a device
// removal.
const DefaultDeleteWorkers = 4

// ErrPartialCleanup reports that the mapping work committed but the final
// removal of the device's mapping directory failed. The operation is not
// retried automatically; running it again is safe.
var ErrPartialCleanup = errors.New("device mapping directory could not be removed")

// Options configures a reconciler for the local device.
type Options struct {
	DeviceID   string
	DeviceName string
	UploadRoot string
	// MediaRoot is where merged entries will later be downloaded to.
	MediaRoot string
	// Workers bounds parallel remote deletes; DefaultDeleteWorkers when zero.
	Workers int
}

// Reconciler mutates the shared remote store on behalf of device-management
// commands. It shares the Coordinator with the sync runner so a removal never
// races a running synchronization.
type Reconciler struct {
	client remotefs.Client
	store  *mapping.Store
	coord  *syncrun.Coordinator
	opts   Options
}

func New(client remotefs.Client, store *mapping.Store, coord *syncrun.Coordinator, opts Options) *Reconciler {
	if opts.Workers <= 0 {
		opts.Workers = DefaultDeleteWorkers
	}
	return &Reconciler{client: client, store: store, coord: coord, opts: opts}
}

// DeviceInfo summarizes one device known to the remote store.
type DeviceInfo struct {
	DeviceID    string
	DeviceName  string
	LastUpdated time.Time
	Entries     int
	Self        bool
}

// Devices lists every device that has published a mapping, including this
// one. Devices whose mapping cannot be fetched are reported with an empty
// name and zero entries rather than omitted.
func (r *Reconciler) Devices(ctx context.Context) ([]DeviceInfo, error) {
	ids, err := r.store.ListPeers(ctx, "")
	if err != nil {
		return nil, err
	}

	infos := make([]DeviceInfo, 0, len(ids))
	for _, id := range ids {
		info := DeviceInfo{DeviceID: id, Self: id == r.opts.DeviceID}
		doc, err := r.store.FetchPeer(ctx, id)
		if err != nil {
			plog.Warn("Could not fetch device mapping", "device_id", id, "error", err)
		} else {
			info.DeviceName = doc.DeviceName
			info.LastUpdated = doc.LastUpdated
			info.Entries = doc.Len()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })
	return infos, nil
}

// RemoveSummary is the outcome of RemoveDevice.
type RemoveSummary struct {
	FilesDeleted int
	FilesFailed  int
}

// RemoveDevice deletes the target device's remote media files and then its
// mapping directory. Per-file delete failures are logged and counted, never
// fatal; only a failure to remove the mapping directory itself is reported,
// as ErrPartialCleanup.
func (r *Reconciler) RemoveDevice(ctx context.Context, targetID string) (RemoveSummary, error) {
	var summary RemoveSummary
	if targetID == r.opts.DeviceID {
		return summary, fmt.Errorf("refusing to remove the local device %s", targetID)
	}
	if err := r.coord.Begin(syncrun.StateReconciling); err != nil {
		return summary, err
	}
	defer r.coord.End()

	doc, err := r.store.FetchPeer(ctx, targetID)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch mapping of device %s: %w", targetID, err)
	}

	var deleted, failed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.opts.Workers)
	for _, entry := range doc.Mappings {
		cloudPath := entry.CloudPath
		group.Go(func() error {
			if err := r.client.Delete(groupCtx, cloudPath); err != nil && !remotefs.IsNotFound(err) {
				plog.Warn("Failed to delete remote file", "path", cloudPath, "error", err)
				failed.Add(1)
				return nil
			}
			deleted.Add(1)
			return nil
		})
	}
	_ = group.Wait()
	summary.FilesDeleted = int(deleted.Load())
	summary.FilesFailed = int(failed.Load())

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	if err := r.client.DeleteDir(ctx, r.store.RemoteDir(targetID)); err != nil {
		plog.Error("Device files deleted but mapping directory remains", "device_id", targetID, "error", err)
		return summary, fmt.Errorf("%w: %s: %v", ErrPartialCleanup, targetID, err)
	}

	plog.Info("Removed device from remote store",
		"device_id", targetID,
		"files_deleted", summary.FilesDeleted,
		"files_failed", summary.FilesFailed)
	return summary, nil
}

// MergeSummary is the outcome of MergeAndRemove.
type MergeSummary struct {
	Merged int
}

// MergeAndRemove folds the target device's mapping into the local one and
// then removes only the target's mapping directory. Identities already known
// locally are left untouched; unknown ones are added as pendingDownload so
// the next synchronization run fetches them. Remote media files are never
// deleted by this operation.
func (r *Reconciler) MergeAndRemove(ctx context.Context, targetID string) (MergeSummary, error) {
	var summary MergeSummary
	if targetID == r.opts.DeviceID {
		return summary, fmt.Errorf("refusing to merge the local device %s into itself", targetID)
	}
	if err := r.coord.Begin(syncrun.StateReconciling); err != nil {
		return summary, err
	}
	defer r.coord.End()

	local, err := r.store.Load(r.opts.DeviceID, r.opts.DeviceName)
	if err != nil {
		return summary, err
	}
	target, err := r.store.FetchPeer(ctx, targetID)
	if err != nil {
		return summary, fmt.Errorf("failed to fetch mapping of device %s: %w", targetID, err)
	}

	for _, entry := range target.Mappings {
		if local.Has(entry.MediaID) {
			continue
		}
		local.AddOrUpdate(mapping.MediaMapping{
			MediaID:    entry.MediaID,
			LocalPath:  r.mirrorPath(entry.CloudPath),
			CloudPath:  entry.CloudPath,
			MediaType:  entry.MediaType,
			Size:       entry.Size,
			CreatedAt:  entry.CreatedAt,
			SyncStatus: mapping.StatusPendingDownload,
		})
		summary.Merged++
	}

	// Commit the merge before touching the remote: once saved and published,
	// re-running the removal cannot lose entries.
	if err := r.store.Save(local); err != nil {
		return summary, err
	}
	if err := r.store.Publish(ctx, local); err != nil {
		return summary, err
	}

	if err := r.client.DeleteDir(ctx, r.store.RemoteDir(targetID)); err != nil {
		plog.Error("Mapping merged but device mapping directory remains", "device_id", targetID, "error", err)
		return summary, fmt.Errorf("%w: %s: %v", ErrPartialCleanup, targetID, err)
	}

	plog.Info("Merged device into local mapping", "device_id", targetID, "merged", summary.Merged)
	return summary, nil
}

// mirrorPath maps a remote media path to a local target under the media root,
// preserving the date-based layout.
func (r *Reconciler) mirrorPath(cloudPath string) string {
	relative := strings.TrimPrefix(cloudPath, r.opts.UploadRoot+"/")
	if relative == "" || relative == cloudPath {
		relative = path.Base(cloudPath)
	}
	return filepath.Join(r.opts.MediaRoot, util.DenormalizePath(relative))
}
