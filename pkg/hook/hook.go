// Package hook runs user-configured shell commands around a sync run.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/pixeldrift/photosync/pkg/hints"
	"github.com/pixeldrift/photosync/pkg/plog"
)

var ErrNothingToExecute = hints.New("nothing to execute")

// Executor runs hook commands through the platform shell.
type Executor struct {
	// commandContext allows mocking os/exec for testing hooks.
	commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

// NewExecutor creates an Executor. Pass exec.CommandContext outside of tests.
func NewExecutor(commandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd) *Executor {
	return &Executor{commandContext: commandContext}
}

// RunPreSync executes the pre-sync commands. The first failing command aborts
// with an error so a failed precondition (e.g. mounting the NAS) stops the
// run before any remote state is touched.
func (e *Executor) RunPreSync(ctx context.Context, commands []string) error {
	return e.run(ctx, "pre-sync", commands, true)
}

// RunPostSync executes the post-sync commands. Failures are logged and the
// remaining commands still run; the sync outcome is already decided.
func (e *Executor) RunPostSync(ctx context.Context, commands []string) error {
	return e.run(ctx, "post-sync", commands, false)
}

func (e *Executor) run(ctx context.Context, hookName string, commands []string, failFast bool) error {
	if len(commands) == 0 {
		return ErrNothingToExecute
	}

	plog.Info(fmt.Sprintf("Running %s hook commands", hookName), "count", len(commands))

	for _, hookCommand := range commands {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		plog.Info("Executing command", "command", hookCommand)

		cmd := e.createCommand(ctx, hookCommand)
		// Pipe output through for visibility.
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			// A canceled context makes cmd.Wait return an opaque error;
			// report the cancellation itself instead.
			if ctx.Err() == context.Canceled {
				return context.Canceled
			}
			if failFast {
				return fmt.Errorf("command '%s' failed: %w", hookCommand, err)
			}
			plog.Warn("Hook command failed", "command", hookCommand, "error", err)
		}
	}
	return nil
}
