package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/slipstream/qbremote/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Interrupting a search cancels it; the daemon-side job is still stopped.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return cli.Run(ctx, os.Args[1:], cli.Options{})
}
