package shim

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/containerd/log"
)

// taskProcess is the interpreter process of one task. exitTime and
// exitStatus are set under the service lock before done is cancelled.
type taskProcess struct {
	id      string
	bundle  string
	cmd     *exec.Cmd
	pid     int
	io      stdio
	started bool

	done       context.Context
	markDone   func()
	exitTime   time.Time
	exitStatus int
}

func (t *taskProcess) exited() bool {
	return t.done.Err() != nil
}

func (t *taskProcess) String() string {
	if t.exited() {
		return fmt.Sprintf("pid:%d, exitTime:%s, exitStatus:%d", t.pid, t.exitTime.Format(time.RFC3339), t.exitStatus)
	}
	return fmt.Sprintf("pid:%d running", t.pid)
}

// exitStatusOf follows the shell convention: the exit code, or 128 plus the
// signal number for a killed process.
func exitStatusOf(ctx context.Context, cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		log.G(ctx).Warn("task process wait returned without setting process state")
		return 255
	}
	ws, _ := cmd.ProcessState.Sys().(syscall.WaitStatus)
	switch {
	case cmd.ProcessState.Exited():
		return cmd.ProcessState.ExitCode()
	case ws.Signaled():
		return exitCodeSignal + int(ws.Signal())
	}
	return 255
}

// watch waits for the task process in the background and records its exit.
// The shim shuts down once every task has exited.
func (s *taskService) watch(ctx context.Context, t *taskProcess) {
	ready := make(chan struct{})
	go func() {
		close(ready)

		if err := t.cmd.Wait(); err != nil {
			if _, ok := err.(*exec.ExitError); !ok {
				log.G(ctx).WithError(err).Errorf("failed to wait for task process %d", t.pid)
			}
		}
		status := exitStatusOf(ctx, t.cmd)
		log.G(ctx).WithField("id", t.id).Debugf("task process %d exited with %d", t.pid, status)

		s.mu.Lock()
		defer s.mu.Unlock()

		t.exitStatus = status
		t.exitTime = time.Now()
		t.markDone()

		if _, ok := s.tasks[t.id]; !ok {
			log.G(ctx).Errorf("task %s was removed before its process exited", t.id)
		}

		for _, other := range s.tasks {
			if !other.exited() {
				return
			}
		}
		log.G(ctx).Debug("all tasks exited. shutting down the shim")
		s.shutdown.Shutdown()
	}()
	<-ready
}
