// Package syncrun orchestrates a full synchronization run: publish, merge,
// upload, download, persist.
package syncrun

import (
	"fmt"
	"sync"
)

// State is the coordinator's current activity.
type State string

const (
	StateIdle        State = "idle"
	StateSyncing     State = "syncing"
	StateReconciling State = "reconciling"
)

// BusyError reports that an operation could not start because another one is
// in progress.
type BusyError struct {
	Current State
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("another operation is in progress: %s", e.Current)
}

// Coordinator serializes mutations of the mapping document within one
// process. A sync run and a device-management operation are mutually
// exclusive; whichever begins first wins and the other fails fast with a
// BusyError instead of queueing.
type Coordinator struct {
	mu    sync.Mutex
	state State
}

func NewCoordinator() *Coordinator {
	return &Coordinator{state: StateIdle}
}

// Begin transitions idle -> next. It returns a *BusyError when an operation
// is already running.
func (c *Coordinator) Begin(next State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return &BusyError{Current: c.state}
	}
	c.state = next
	return nil
}

// End returns the coordinator to idle.
func (c *Coordinator) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateIdle
}

// State returns the current activity.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
