package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MarcinKonowalczyk/bftree/cli"
	bf_shim "github.com/MarcinKonowalczyk/bftree/shim"

	"github.com/containerd/containerd/v2/pkg/shim"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The task process is this binary again, hijacked to run the interpreter
	brainfuck, args := isBrainfuckArg(os.Args[1:])
	if !brainfuck {
		shim.Run(ctx, bf_shim.NewManager(bf_shim.RuntimeName))
		return
	}

	err := cli.Run(ctx, args, os.Stdin, os.Stdout, os.Stderr)
	code := cli.ExitCode(err)
	if code == cli.ExitFailure {
		fmt.Fprintln(os.Stderr, "Error running brainfuck:", err)
	}
	cancel()
	os.Exit(code)
}

func isBrainfuckArg(args []string) (bool, []string) {
	for i, arg := range args {
		if arg == bf_shim.TaskSubcommand {
			rest := make([]string, 0, len(args)-1)
			rest = append(rest, args[:i]...)
			return true, append(rest, args[i+1:]...)
		}
	}
	return false, args
}
