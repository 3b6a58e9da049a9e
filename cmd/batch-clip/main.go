// Package main is the entry point for the batch-clip CLI.
//
// All functionality lives in the internal/cli package. Build-time
// variables (version, commit, date) are injected via ldflags.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/shinji-kodama/batch-clip/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Ctrl-C stops the batch between feature classes and cancels the
	// running GDAL command.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx, cli.NewRootCommand())
}
