// Command annul archives Debian source packages into sanitized, framed,
// zstd-compressed containers.
//
// Usage:
//
//	annul fetch <url> <dest>        archive a .dsc package or a single file URL
//	annul file <path> <dest>        archive a local file
//	annul inspect <container>       list the frames of a container
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(os.LookupEnv).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
