// Package main is the enricher CLI entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mlpeters/bookmark-enricher/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
