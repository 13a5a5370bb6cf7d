package shim

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	apitypes "github.com/containerd/containerd/api/types"
	"github.com/containerd/containerd/v2/pkg/shim"
	"github.com/containerd/log"
)

const (
	// RuntimeName is the runtime the shim registers as, e.g.
	// `ctr run --runtime io.containerd.bf.v1`.
	RuntimeName = "io.containerd.bf.v1"
	// TaskSubcommand makes the shim binary run the interpreter instead.
	TaskSubcommand = "brainfuck"

	runtimeVersion = "v1.3.0"
)

// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html#tag_18_21_18
const exitCodeSignal = 128
const taskPidFile = "bf.pid"

// comptime override for debug flag
// set with `-ldflags="-X 'github.com/MarcinKonowalczyk/bftree/shim.debug=true'"`
var debug string

type manager struct {
	name string
}

func NewManager(name string) shim.Manager {
	return manager{name: name}
}

var _ = shim.Manager(manager{})

func (m manager) Name() string {
	return m.name
}

// Start re-executes the shim as a long-lived ttrpc server for the task id
// and hands its socket address back to containerd. It runs in the bundle
// directory, and a bundle whose program cannot run is refused before any
// server is spawned for it.
func (m manager) Start(ctx context.Context, id string, opts shim.StartOpts) (_ shim.BootstrapParams, retErr error) {
	ctx = log.WithLogger(ctx, log.G(ctx).WithField("id", id))
	log.G(ctx).Debug("start (manager)")

	params := shim.BootstrapParams{
		Version:  2,
		Protocol: "ttrpc",
	}

	bundle, err := os.Getwd()
	if err != nil {
		return params, fmt.Errorf("getting current working directory: %w", err)
	}
	config, err := ReadConfig(ctx, bundle)
	if err != nil {
		return params, fmt.Errorf("checking bundle %s: %w", bundle, err)
	}

	cmd, err := m.serverCommand(ctx, bundle, opts)
	if err != nil {
		return params, err
	}

	sockAddr, err := shim.SocketAddress(ctx, opts.Address, id, opts.Debug)
	if err != nil {
		return params, fmt.Errorf("getting a socket address: %w", err)
	}
	socket, err := shim.NewSocket(sockAddr)
	if err != nil {
		return params, fmt.Errorf("creating socket: %w", err)
	}
	defer func() {
		if retErr != nil {
			socket.Close()
			_ = shim.RemoveSocket(sockAddr)
		}
	}()

	sockF, err := socket.File()
	if err != nil {
		return params, fmt.Errorf("getting shim socket file descriptor: %w", err)
	}
	defer func() {
		if retErr != nil {
			sockF.Close()
		}
	}()
	cmd.ExtraFiles = append(cmd.ExtraFiles, sockF)

	if err := func() error {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		return cmd.Start()
	}(); err != nil {
		return params, fmt.Errorf("starting shim command: %w", err)
	}
	defer func() {
		if retErr != nil {
			cmd.Process.Kill()
		}
	}()

	go func() {
		if err := cmd.Wait(); err != nil {
			if _, ok := err.(*exec.ExitError); !ok {
				log.G(ctx).WithError(err).Errorf("failed to wait for shim process %d", cmd.Process.Pid)
			}
		}
	}()

	if err := shim.AdjustOOMScore(cmd.Process.Pid); err != nil {
		return params, fmt.Errorf("adjusting shim process OOM score: %w", err)
	}

	log.G(ctx).WithField("pid", cmd.Process.Pid).
		WithField("instructions", config.Stats.Optimised).
		Debugf("shim server started for %s", config.Entrypoint)

	params.Address = sockAddr
	return params, nil
}

// serverCommand is the shim binary invoked as the ttrpc server of a bundle.
func (m manager) serverCommand(ctx context.Context, bundle string, opts shim.StartOpts) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("getting executable of current process: %w", err)
	}

	var args []string
	if opts.Debug || debug != "" {
		args = append(args, "-debug")
	}

	cmd, err := shim.Command(ctx, &shim.CommandConfig{
		Runtime:      self,
		Address:      opts.Address,
		TTRPCAddress: opts.TTRPCAddress,
		Path:         bundle,
		Args:         args,
	})
	if err != nil {
		return nil, fmt.Errorf("creating shim command: %w", err)
	}
	return cmd, nil
}

// Stop kills the interpreter process of a task whose shim is gone. The pid
// file is the only record of which process that is.
func (m manager) Stop(ctx context.Context, id string) (shim.StopStatus, error) {
	log.G(ctx).WithField("id", id).Debug("stop (manager)")

	pid, err := readPidFile(id)
	if err != nil {
		return shim.StopStatus{}, fmt.Errorf("reading pid file: %w", err)
	}

	if pid > 0 {
		p, _ := os.FindProcess(pid)
		// The POSIX standard specifies that a null-signal can be sent to check
		// whether a PID is valid.
		if err := p.Signal(syscall.Signal(0)); err == nil {
			if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
				log.G(ctx).WithError(err).Warnf("failed to send kill syscall to task process %d", pid)
			}
		}
	}

	return shim.StopStatus{
		Pid:        pid,
		ExitedAt:   time.Now(),
		ExitStatus: int(exitCodeSignal + syscall.SIGKILL),
	}, nil
}

func (m manager) Info(ctx context.Context, optionsR io.Reader) (*apitypes.RuntimeInfo, error) {
	log.G(ctx).Debug("info (manager)")
	return &apitypes.RuntimeInfo{
		Name: m.name,
		Version: &apitypes.RuntimeVersion{
			Version: runtimeVersion,
		},
	}, nil
}

// The shim runs with the bundle as its working directory; bundles of the
// same namespace are siblings.
func pidFilePath(id string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current working directory: %w", err)
	}
	return filepath.Join(filepath.Dir(cwd), id, taskPidFile), nil
}

func readPidFile(id string) (int, error) {
	path, err := pidFilePath(id)
	if err != nil {
		return -1, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func writePidFile(id string, pid int) error {
	path, err := pidFilePath(id)
	if err != nil {
		return err
	}
	if err := shim.WritePidFile(path, pid); err != nil {
		return fmt.Errorf("writing pid file of task process: %w", err)
	}
	// rw-r--r--, owned by root
	if err := os.Chmod(path, 0644); err != nil {
		return fmt.Errorf("changing pid file permissions: %w", err)
	}
	if err := os.Chown(path, 0, 0); err != nil {
		return fmt.Errorf("changing pid file ownership: %w", err)
	}
	return nil
}
