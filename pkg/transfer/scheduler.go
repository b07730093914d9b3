package transfer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/remotefs"
)

const (
	// DefaultMaxConcurrent is the default number of tasks in flight.
	DefaultMaxConcurrent = 5
	// DefaultHistoryLimit caps the completed-task history.
	DefaultHistoryLimit = 100

	eventBufferSize = 64
)

// Scheduler runs transfer tasks against the remote client with bounded
// concurrency. Submissions queue in FIFO order; Run drains the queue.
// A failed task records its error and never blocks other tasks; the scheduler
// retries nothing, retry is the next sync run's decision via mapping status.
//
// All registries are updated under one mutex so progress counters are never
// lost between concurrent task completions.
type Scheduler struct {
	client       remotefs.Client
	metrics      Metrics
	sem          *semaphore.Weighted
	historyLimit int

	mu        sync.Mutex
	pending   []Task
	active    map[string]Task
	completed []Task
	planned   int
	done      int

	events chan Progress
}

// NewScheduler creates a scheduler. Zero or negative limits select defaults.
// A nil metrics implementation disables metrics.
func NewScheduler(client remotefs.Client, maxConcurrent, historyLimit int, metrics Metrics) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Scheduler{
		client:       client,
		metrics:      metrics,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		historyLimit: historyLimit,
		active:       make(map[string]Task),
		events:       make(chan Progress, eventBufferSize),
	}
}

// Events returns the progress event stream. Events are dropped when the
// consumer falls behind; the channel never blocks a transfer.
func (s *Scheduler) Events() <-chan Progress {
	return s.events
}

// SetPlanned declares the total number of tasks the current run will execute
// across all phases, so the aggregate percentage spans uploads and downloads.
func (s *Scheduler) SetPlanned(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.planned = n
	s.done = 0
}

// Submit queues a task. The task starts executing on the next Run call.
func (s *Scheduler) Submit(task Task) string {
	task.Status = StatusPending
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, task)
	return task.ID
}

// Pending returns a snapshot of the queued tasks in submission order.
func (s *Scheduler) Pending() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.pending))
	copy(out, s.pending)
	return out
}

// Active returns a snapshot of the tasks currently in flight.
func (s *Scheduler) Active() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.active))
	for _, t := range s.active {
		out = append(out, t)
	}
	return out
}

// Completed returns the bounded history of finished tasks, oldest first.
func (s *Scheduler) Completed() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, len(s.completed))
	copy(out, s.completed)
	return out
}

// Run drains the pending queue and returns the finished tasks of this drain.
// Admission is FIFO with at most maxConcurrent tasks in flight. Cancelling ctx
// stops admitting new tasks; tasks already in flight finish or fail naturally
// so no partial remote write is abandoned mid-stream.
func (s *Scheduler) Run(ctx context.Context) []Task {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []Task

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			break
		}
		task := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			// Cancelled while waiting for a slot: fail the task without
			// touching the remote.
			finished := s.finish(task, time.Now(), err)
			mu.Lock()
			results = append(results, finished)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(task Task) {
			defer wg.Done()
			defer s.sem.Release(1)

			finished := s.execute(ctx, task)
			mu.Lock()
			results = append(results, finished)
			mu.Unlock()
		}(task)
	}

	wg.Wait()
	return results
}

// execute moves one task through its lifecycle.
func (s *Scheduler) execute(ctx context.Context, task Task) Task {
	task.Status = StatusInProgress
	task.StartTime = time.Now()
	s.mu.Lock()
	s.active[task.ID] = task
	s.mu.Unlock()

	var err error
	switch task.Type {
	case TypeUpload:
		err = s.client.Upload(ctx, task.RemotePath, task.LocalPath)
	case TypeDownload:
		err = s.client.Download(ctx, task.RemotePath, task.LocalPath)
	}

	return s.finish(task, task.StartTime, err)
}

// finish records the outcome, updates history, counters and metrics, and
// emits a progress event.
func (s *Scheduler) finish(task Task, start time.Time, err error) Task {
	task.StartTime = start
	task.EndTime = time.Now()
	if err != nil {
		task.Status = StatusFailed
		task.Err = err.Error()
		s.metrics.AddFilesFailed(1)
		plog.Warn("Transfer failed", "type", string(task.Type), "file", task.FileName, "error", err)
	} else {
		task.Status = StatusCompleted
		s.metrics.AddBytesTransferred(task.FileSize)
		switch task.Type {
		case TypeUpload:
			s.metrics.AddFilesUploaded(1)
			plog.Notice("Uploaded", "file", task.FileName)
		case TypeDownload:
			s.metrics.AddFilesDownloaded(1)
			plog.Notice("Downloaded", "file", task.FileName)
		}
	}

	s.mu.Lock()
	delete(s.active, task.ID)
	s.completed = append(s.completed, task)
	if len(s.completed) > s.historyLimit {
		s.completed = s.completed[len(s.completed)-s.historyLimit:]
	}
	s.done++
	event := Progress{
		Percent:     s.percentLocked(),
		CurrentItem: task.FileName,
		Done:        s.done,
		Planned:     s.planned,
	}
	s.mu.Unlock()

	select {
	case s.events <- event:
	default:
		// Drop when the consumer lags, transfers must never block on it.
	}
	return task
}

// percentLocked computes the aggregate percentage. Callers hold s.mu.
func (s *Scheduler) percentLocked() int {
	if s.planned <= 0 {
		return 0
	}
	pct := s.done * 100 / s.planned
	if pct > 100 {
		pct = 100
	}
	return pct
}
