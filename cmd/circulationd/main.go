// Command circulationd runs the circulation engine for one distributor collection.
//
// It serves the distributor's loan notification callback and the Prometheus metrics endpoint,
// and applies the ledger migrations.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string) int {
	logger := newLogger(os.Stderr, "info")

	cmd := newRootCommand()
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if ctx.Err() == nil {
			logger.Error("command failed", "error", err)
		}

		return 1
	}

	return 0
}
