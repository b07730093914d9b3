package transfer_test

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixeldrift/photosync/pkg/plog"
	"github.com/pixeldrift/photosync/pkg/transfer"
)

// syncBuffer is a mutex-guarded buffer safe to read while the progress
// goroutine is still writing log lines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func TestTransferMetrics_Adders(t *testing.T) {
	t.Run("correctly increments all counters", func(t *testing.T) {
		m := &transfer.TransferMetrics{}

		m.AddFilesUploaded(5)
		m.AddFilesDownloaded(3)
		m.AddFilesFailed(2)
		m.AddBytesTransferred(1024)

		if got := m.FilesUploaded.Load(); got != 5 {
			t.Errorf("expected FilesUploaded to be 5, got %d", got)
		}
		if got := m.FilesDownloaded.Load(); got != 3 {
			t.Errorf("expected FilesDownloaded to be 3, got %d", got)
		}
		if got := m.FilesFailed.Load(); got != 2 {
			t.Errorf("expected FilesFailed to be 2, got %d", got)
		}
		if got := m.BytesTransferred.Load(); got != 1024 {
			t.Errorf("expected BytesTransferred to be 1024, got %d", got)
		}
	})
}

func TestTransferMetrics_Log(t *testing.T) {
	t.Run("logs the correct summary values", func(t *testing.T) {
		var logBuf bytes.Buffer
		plog.SetOutput(&logBuf)
		t.Cleanup(func() { plog.SetOutput(os.Stderr) })

		m := &transfer.TransferMetrics{}
		m.AddFilesUploaded(10)
		m.AddFilesDownloaded(4)
		m.AddBytesTransferred(500)
		m.StartProgress("Test", time.Hour) // Initialize startTime
		m.StopProgress()                   // Stop immediately to avoid leaks
		m.LogSummary("Test Summary")

		output := logBuf.String()

		if !strings.Contains(output, "msg=\"Test Summary\"") {
			t.Errorf("expected log output to contain 'msg=\"Test Summary\"', but it didn't. Got: %s", output)
		}
		if !strings.Contains(output, "files_uploaded=10") {
			t.Errorf("expected log output to contain 'files_uploaded=10', but it didn't. Got: %s", output)
		}
		if !strings.Contains(output, "files_downloaded=4") {
			t.Errorf("expected log output to contain 'files_downloaded=4', but it didn't. Got: %s", output)
		}
		if !strings.Contains(output, "bytes_transferred=\"500 B\"") {
			t.Errorf("expected log output to contain 'bytes_transferred=\"500 B\"', but it didn't. Got: %s", output)
		}
		// Check a zero value to ensure it's also logged correctly
		if !strings.Contains(output, "files_failed=0") {
			t.Errorf("expected log output to contain 'files_failed=0', but it didn't. Got: %s", output)
		}
		if !strings.Contains(output, "duration=") {
			t.Errorf("expected log output to contain 'duration=', but it didn't. Got: %s", output)
		}
	})
}

func TestTransferMetrics_Progress(t *testing.T) {
	t.Run("ticker reports periodically and stops on StopProgress", func(t *testing.T) {
		logBuf := &syncBuffer{}
		plog.SetOutput(logBuf)
		t.Cleanup(func() { plog.SetOutput(os.Stderr) })

		m := &transfer.TransferMetrics{}
		m.StartProgress("Progress Tick", 5*time.Millisecond)

		// Wait for at least one periodic report.
		deadline := time.Now().Add(2 * time.Second)
		for !strings.Contains(logBuf.String(), "Progress Tick") {
			if time.Now().After(deadline) {
				t.Fatal("ticker never produced a progress report")
			}
			time.Sleep(time.Millisecond)
		}

		m.StopProgress()

		// Allow an in-flight tick to drain, then verify the goroutine went quiet.
		time.Sleep(30 * time.Millisecond)
		before := logBuf.Len()
		time.Sleep(50 * time.Millisecond)
		if after := logBuf.Len(); after != before {
			t.Errorf("progress reports continued after StopProgress (output grew from %d to %d bytes)", before, after)
		}
	})
}

func TestNoopMetrics(t *testing.T) {
	t.Run("all methods execute without panicking", func(t *testing.T) {
		m := &transfer.NoopMetrics{}

		defer func() {
			if r := recover(); r != nil {
				t.Errorf("NoopMetrics method panicked: %v", r)
			}
		}()

		m.AddFilesUploaded(1)
		m.AddFilesDownloaded(1)
		m.AddFilesFailed(1)
		m.AddBytesTransferred(1)
		m.LogSummary("noop")
		m.StartProgress("noop", time.Second)
		m.StopProgress()
	})
}
