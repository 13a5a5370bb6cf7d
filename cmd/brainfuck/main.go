package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarcinKonowalczyk/bftree/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.Run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()

	code := cli.ExitCode(err)
	if code == cli.ExitFailure {
		fmt.Fprintln(os.Stderr, "Error running brainfuck:", err)
	}
	os.Exit(code)
}
