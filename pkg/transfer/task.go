// Package transfer executes upload and download tasks against the remote
// store with bounded concurrency.
package transfer

import (
	"time"

	"github.com/google/uuid"
)

// Type distinguishes the transfer direction.
type Type string

const (
	TypeUpload   Type = "upload"
	TypeDownload Type = "download"
)

// Status is the lifecycle state of a task. Tasks move
// pending -> inProgress -> completed|failed and never back.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "inProgress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Task is one file transfer. It is transient, scoped to a single run; durable
// sync state lives in the mapping document.
type Task struct {
	ID   string
	Type Type
	// MediaID links the task back to its mapping entry.
	MediaID    string
	FileName   string
	FileSize   int64
	RemotePath string
	LocalPath  string
	Status     Status
	StartTime  time.Time
	EndTime    time.Time
	// Err holds the failure message for failed tasks.
	Err string
}

// NewUpload builds a pending upload task.
func NewUpload(mediaID, fileName string, size int64, localPath, remotePath string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       TypeUpload,
		MediaID:    mediaID,
		FileName:   fileName,
		FileSize:   size,
		RemotePath: remotePath,
		LocalPath:  localPath,
		Status:     StatusPending,
	}
}

// NewDownload builds a pending download task.
func NewDownload(mediaID, fileName string, size int64, remotePath, localPath string) Task {
	return Task{
		ID:         uuid.NewString(),
		Type:       TypeDownload,
		MediaID:    mediaID,
		FileName:   fileName,
		FileSize:   size,
		RemotePath: remotePath,
		LocalPath:  localPath,
		Status:     StatusPending,
	}
}

// Progress is one scheduler progress event: the aggregate percentage across
// all planned tasks of the run plus the item that just finished.
type Progress struct {
	Percent     int
	CurrentItem string
	Done        int
	Planned     int
}
