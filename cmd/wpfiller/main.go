package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/wp-filler/cmd"
)

func main() {
	os.Exit(run())
}

func run() int {
	// SIGINT and SIGTERM cancel the context, which drains the webhook server
	// and aborts a running fill.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	return 0
}
