package shim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/containerd/fifo"
	"github.com/containerd/log"
)

// openFifo opens one of the stdio fifos containerd created for the task.
func openFifo(ctx context.Context, path string, flag int) (io.ReadWriteCloser, error) {
	ok, err := fifo.IsFifo(path)
	if err != nil {
		return nil, fmt.Errorf("checking whether file %s is a fifo: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("file %s is not a fifo", path)
	}
	f, err := fifo.OpenFifo(ctx, path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening fifo %s: %w", path, err)
	}
	return f, nil
}

// copyPipe copies src to dst in the background and closes done once the
// copy ends.
func copyPipe(ctx context.Context, dst io.Writer, src io.Reader, what string, done ...io.Closer) {
	go func() {
		if _, err := io.Copy(dst, src); err != nil {
			log.G(ctx).WithError(err).Errorf("failed to copy %s", what)
		}
		closeAll(ctx, done)
	}()
}

func closeAll(ctx context.Context, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			log.G(ctx).WithError(err).Debug("failed to close task stdio")
		}
	}
}

type stdio struct {
	Stdin  string
	Stdout string
	Stderr string
}

// connect wires the task process to the fifos. Stdin is optional: without
// it every input read of the program fails, which the interpreter
// tolerates. Stderr falls back to stdout. The returned closers release
// everything connect opened and must be closed if the process never starts.
func (s stdio) connect(ctx context.Context, t *taskProcess) (_ []io.Closer, retErr error) {
	var opened []io.Closer
	defer func() {
		if retErr != nil {
			closeAll(ctx, opened)
		}
	}()

	fw, err := openFifo(ctx, s.Stdout, syscall.O_WRONLY)
	if err != nil {
		return nil, err
	}
	opened = append(opened, fw)
	stdout, err := t.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdout pipe: %w", err)
	}
	opened = append(opened, stdout)
	copyPipe(ctx, fw, stdout, "stdout pipe to fifo "+s.Stdout, fw)

	stderrPath := s.Stderr
	if stderrPath == "" {
		stderrPath = s.Stdout
	}
	fe, err := openFifo(ctx, stderrPath, syscall.O_WRONLY)
	if err != nil {
		return nil, err
	}
	opened = append(opened, fe)
	stderr, err := t.cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}
	opened = append(opened, stderr)
	copyPipe(ctx, fe, stderr, "stderr pipe to fifo "+stderrPath, fe)

	if s.Stdin == "" {
		return opened, nil
	}
	fr, err := openFifo(ctx, s.Stdin, syscall.O_RDONLY)
	if err != nil {
		return nil, err
	}
	opened = append(opened, fr)
	stdin, err := t.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdin pipe: %w", err)
	}
	opened = append(opened, stdin)
	copyPipe(ctx, stdin, fr, "fifo "+s.Stdin+" to stdin pipe", fr, stdin)
	return opened, nil
}
