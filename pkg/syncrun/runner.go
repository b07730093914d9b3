package syncrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pixeldrift/photosync/pkg/catalog"
	"github.com/pixeldrift/photosync/pkg/hints"
	"github.com/pixeldrift/photosync/pkg/hook"
	"github.com/pixeldrift/photosync/pkg/mapping"
	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/preflight"
	"github.com/pixeldrift/photosync/pkg/remotefs"
	"github.com/pixeldrift/photosync/pkg/transfer"
	"github.com/pixeldrift/photosync/pkg/util"
)

// Phase names one step of a run, reported on the progress stream.
type Phase string

const (
	PhasePrepare    Phase = "prepare"
	PhasePublish    Phase = "publish"
	PhaseMerge      Phase = "merge"
	PhaseRemoteDirs Phase = "remoteDirs"
	PhaseUpload     Phase = "upload"
	PhaseDownload   Phase = "download"
	PhasePersist    Phase = "persist"
	PhaseDone       Phase = "done"
)

// Progress is one phase transition of a run.
type Progress struct {
	Phase   Phase
	Message string
}

// ErrFilesFailed marks a run in which individual transfers failed while the
// run itself carried on. The failed items stay marked in the mapping and are
// retried on the next run.
var ErrFilesFailed = errors.New("one or more transfers failed")

// Options configures a run.
type Options struct {
	DeviceID   string
	DeviceName string
	// LibraryRoot holds the mapping document and other local state.
	LibraryRoot string
	// UploadRoot is the remote directory under which media and mappings live.
	UploadRoot string
	// MediaRoot is where merged peer items are downloaded to, mirroring the
	// peer's relative remote layout.
	MediaRoot string
	// ScanRoots are the local directories scanned for media.
	ScanRoots []string

	PreSyncHooks  []string
	PostSyncHooks []string
}

// Summary is the outcome of one run.
type Summary struct {
	Scanned         int
	Peers           int
	MergedFromPeers int
	Planned         int
	Uploaded        int
	Downloaded      int
	Failed          int
}

// Runner executes synchronization runs. It is the only writer of the mapping
// document besides the reconciler; the shared Coordinator keeps the two from
// running at once.
type Runner struct {
	client  remotefs.Client
	store   *mapping.Store
	scanner *catalog.Scanner
	sched   *transfer.Scheduler
	coord   *Coordinator
	hooks   *hook.Executor
	opts    Options

	progress chan Progress
}

// NewRunner wires a runner. hooks may be nil when no hook commands are
// configured.
func NewRunner(client remotefs.Client, store *mapping.Store, scanner *catalog.Scanner, sched *transfer.Scheduler, coord *Coordinator, hooks *hook.Executor, opts Options) *Runner {
	return &Runner{
		client:   client,
		store:    store,
		scanner:  scanner,
		sched:    sched,
		coord:    coord,
		hooks:    hooks,
		opts:     opts,
		progress: make(chan Progress, 16),
	}
}

// Progress returns the phase event stream. Events are dropped when the
// consumer falls behind.
func (r *Runner) Progress() <-chan Progress {
	return r.progress
}

func (r *Runner) emit(phase Phase, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	plog.Info("Sync phase", "phase", string(phase), "detail", msg)
	select {
	case r.progress <- Progress{Phase: phase, Message: msg}:
	default:
	}
}

// Run executes the ordered phases of one synchronization run. Errors during
// the preparatory phases abort the run with local state untouched; individual
// transfer failures mark their mapping entries failed and the run continues,
// reporting ErrFilesFailed at the end.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	if err := r.coord.Begin(StateSyncing); err != nil {
		return summary, err
	}
	defer r.coord.End()

	if r.hooks != nil && len(r.opts.PreSyncHooks) > 0 {
		if err := r.hooks.RunPreSync(ctx, r.opts.PreSyncHooks); err != nil && !hints.IsHint(err) {
			return summary, fmt.Errorf("pre-sync hook failed: %w", err)
		}
	}
	if r.hooks != nil && len(r.opts.PostSyncHooks) > 0 {
		// Post-sync hooks run regardless of the outcome.
		defer func() {
			if err := r.hooks.RunPostSync(ctx, r.opts.PostSyncHooks); err != nil && !hints.IsHint(err) {
				plog.Warn("Post-sync hooks failed", "error", err)
			}
		}()
	}

	// Preflight: the library must be usable and the remote reachable before
	// anything is mutated.
	if err := preflight.CheckLibraryAccessible(r.opts.LibraryRoot); err != nil {
		return summary, err
	}
	if err := preflight.CheckScanRootsAccessible(r.opts.ScanRoots); err != nil {
		// A device may exist only to receive; it still syncs downloads.
		plog.Warn("No accessible scan roots, continuing download-only", "error", err)
	}
	if err := r.client.Connect(ctx); err != nil {
		return summary, fmt.Errorf("remote store unreachable: %w", err)
	}

	// Phase 1: prepare.
	r.emit(PhasePrepare, "loading mapping and scanning media roots")
	doc, err := r.store.Load(r.opts.DeviceID, r.opts.DeviceName)
	if err != nil {
		return summary, err
	}

	index := catalog.NewIndex()
	for item := range r.scanner.Scan(ctx, r.opts.ScanRoots) {
		if !item.IsMedia() {
			continue
		}
		index.Add(item)
	}
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	summary.Scanned = index.Len()
	localItems := index.Items()

	for _, item := range localItems {
		if doc.Has(item.ID) {
			continue
		}
		doc.AddOrUpdate(mapping.MediaMapping{
			MediaID:    item.ID,
			LocalPath:  item.AbsPath,
			CloudPath:  util.JoinRemote(r.opts.UploadRoot, item.DatePath(), item.RemoteName()),
			MediaType:  item.Type,
			Size:       item.Size,
			CreatedAt:  item.CreatedAt,
			SyncStatus: mapping.StatusPendingUpload,
		})
	}

	// Phase 2: publish the local inventory before asking what others have,
	// so peers see this device's state even if the run fails later.
	r.emit(PhasePublish, "publishing local mapping (%d entries)", doc.Len())
	if err := r.store.Publish(ctx, doc); err != nil {
		return summary, err
	}

	// Phase 3: fetch and merge peer mappings. An unreachable or corrupt peer
	// is skipped with a warning, never fatal.
	r.emit(PhaseMerge, "merging peer mappings")
	peers, err := r.store.ListPeers(ctx, r.opts.DeviceID)
	if err != nil {
		return summary, err
	}
	summary.Peers = len(peers)
	for _, peerID := range peers {
		peerDoc, err := r.store.FetchPeer(ctx, peerID)
		if err != nil {
			plog.Warn("Skipping unreachable peer", "device_id", peerID, "error", err)
			continue
		}
		for _, entry := range peerDoc.Mappings {
			if doc.Has(entry.MediaID) {
				continue
			}
			doc.AddOrUpdate(mapping.MediaMapping{
				MediaID:    entry.MediaID,
				LocalPath:  r.localPathFor(entry),
				CloudPath:  entry.CloudPath,
				MediaType:  entry.MediaType,
				Size:       entry.Size,
				CreatedAt:  entry.CreatedAt,
				SyncStatus: mapping.StatusPendingDownload,
			})
			summary.MergedFromPeers++
		}
	}

	// Plan the transfers for this run.
	uploads := r.planUploads(doc, localItems)
	downloads := r.planDownloads(doc)
	summary.Planned = len(uploads) + len(downloads)
	r.sched.SetPlanned(summary.Planned)

	var downloadBytes int64
	for _, task := range downloads {
		downloadBytes += task.FileSize
	}
	if err := os.MkdirAll(r.opts.MediaRoot, util.UserWritableDirPerms); err != nil {
		return summary, fmt.Errorf("failed to create media root: %w", err)
	}
	if err := preflight.CheckFreeDiskSpace(r.opts.MediaRoot, downloadBytes); err != nil {
		return summary, err
	}

	// Phase 4: ensure every date directory implied by the uploads exists.
	r.emit(PhaseRemoteDirs, "creating remote directories")
	if err := r.ensureRemoteDirs(ctx, uploads); err != nil {
		return summary, err
	}

	now := time.Now().UTC()

	// Phase 5: uploads.
	r.emit(PhaseUpload, "uploading %d items", len(uploads))
	for _, task := range uploads {
		r.sched.Submit(task)
	}
	uploaded, failed := r.applyResults(doc, r.sched.Run(ctx), now)
	summary.Uploaded = uploaded
	summary.Failed += failed

	// Phase 6: downloads.
	r.emit(PhaseDownload, "downloading %d items", len(downloads))
	for _, task := range downloads {
		r.sched.Submit(task)
	}
	downloaded, failed := r.applyResults(doc, r.sched.Run(ctx), now)
	summary.Downloaded = downloaded
	summary.Failed += failed

	// Phase 7: persist the outcome, then re-publish it. A failed publish
	// leaves peers with a stale view until the next run; the local document
	// is already safe.
	r.emit(PhasePersist, "persisting mapping")
	if err := r.store.Save(doc); err != nil {
		return summary, err
	}
	if err := r.store.Publish(ctx, doc); err != nil {
		plog.Warn("Failed to re-publish mapping after run", "error", err)
	}

	r.emit(PhaseDone, "uploaded %d, downloaded %d, failed %d", summary.Uploaded, summary.Downloaded, summary.Failed)
	if summary.Failed > 0 {
		return summary, fmt.Errorf("%w: %d of %d tasks", ErrFilesFailed, summary.Failed, summary.Planned)
	}
	return summary, nil
}

// planUploads selects every locally present item not yet synced. Items merged
// from peers (pendingDownload) are excluded, they are not ours to upload.
func (r *Runner) planUploads(doc *mapping.DeviceMapping, localItems []catalog.Item) []transfer.Task {
	var tasks []transfer.Task
	for _, item := range localItems {
		entry, ok := doc.Get(item.ID)
		if !ok || entry.SyncStatus == mapping.StatusSynced || entry.SyncStatus == mapping.StatusPendingDownload {
			continue
		}
		tasks = append(tasks, transfer.NewUpload(item.ID, item.RemoteName(), item.Size, item.AbsPath, entry.CloudPath))
	}
	return tasks
}

// planDownloads selects pendingDownload entries, plus failed entries whose
// local file never materialized (a download that failed on a previous run).
func (r *Runner) planDownloads(doc *mapping.DeviceMapping) []transfer.Task {
	var tasks []transfer.Task
	for _, entry := range doc.Mappings {
		retryFailedDownload := false
		if entry.SyncStatus == mapping.StatusFailed {
			if _, err := os.Stat(entry.LocalPath); os.IsNotExist(err) {
				retryFailedDownload = true
			}
		}
		if entry.SyncStatus != mapping.StatusPendingDownload && !retryFailedDownload {
			continue
		}
		name := path.Base(entry.CloudPath)
		tasks = append(tasks, transfer.NewDownload(entry.MediaID, name, entry.Size, entry.CloudPath, entry.LocalPath))
	}
	return tasks
}

// ensureRemoteDirs creates the unique parent directories of the upload
// targets. Failure here is fatal: uploading into a missing directory would
// fail every task anyway.
func (r *Runner) ensureRemoteDirs(ctx context.Context, uploads []transfer.Task) error {
	dirs := make(map[string]bool)
	for _, task := range uploads {
		dirs[path.Dir(task.RemotePath)] = true
	}

	sorted := make([]string, 0, len(dirs))
	for dir := range dirs {
		sorted = append(sorted, dir)
	}
	sort.Strings(sorted)

	for _, dir := range sorted {
		if err := r.client.Mkdir(ctx, dir); err != nil {
			return fmt.Errorf("failed to create remote directory %s: %w", dir, err)
		}
	}
	return nil
}

// applyResults folds finished tasks back into the mapping document.
func (r *Runner) applyResults(doc *mapping.DeviceMapping, results []transfer.Task, now time.Time) (succeeded, failed int) {
	for _, task := range results {
		switch task.Status {
		case transfer.StatusCompleted:
			doc.SetStatus(task.MediaID, mapping.StatusSynced, now)
			succeeded++
		case transfer.StatusFailed:
			doc.SetFailed(task.MediaID, task.Err)
			failed++
		}
	}
	return succeeded, failed
}

// localPathFor mirrors a peer entry's relative remote layout under this
// device's media root.
func (r *Runner) localPathFor(entry mapping.MediaMapping) string {
	relative := strings.TrimPrefix(entry.CloudPath, r.opts.UploadRoot+"/")
	if relative == "" || relative == entry.CloudPath {
		relative = path.Base(entry.CloudPath)
	}
	return filepath.Join(r.opts.MediaRoot, util.DenormalizePath(relative))
}

// IsConnectivityFailure reports whether a run error was caused by the remote
// being unreachable.
func IsConnectivityFailure(err error) bool {
	return remotefs.IsConnectivity(err)
}
