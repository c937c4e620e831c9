// Command snippets is the terminal client.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sakif/snippet-sync/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		// fang has already printed the error.
		os.Exit(1)
	}
}
