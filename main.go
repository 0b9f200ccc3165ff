package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/n8nkit/n8nkit/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
