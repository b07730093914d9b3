package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pixeldrift/photosync/cmd"
	"github.com/pixeldrift/photosync/pkg/buildinfo"
	"github.com/pixeldrift/photosync/pkg/plog"
)

func main() {
	// Set up a context that is canceled when an interrupt signal is received.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for interrupt signals (like Ctrl+C) in a separate goroutine.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := cmd.Execute(ctx); err != nil {
		plog.Error(buildinfo.Name+" exited with error", "error", err)
		os.Exit(1)
	}
}
