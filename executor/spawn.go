package executor

import (
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cnosuke/cmdrun/types"
)

// Controller is the live handle to a background process. It resolves
// to a Result exactly once; the OS wait is owned by a single goroutine
// so a pid is never waited on twice.
type Controller struct {
	Pid       int
	Name      string
	StartedAt time.Time

	// Pipe ends, set only for streams spawned in StreamPipe mode. The
	// Controller does not accumulate anything; the caller reads and
	// writes directly.
	Stdin  io.WriteCloser
	Stdout io.ReadCloser
	Stderr io.ReadCloser

	command []string
	proc    *os.Process
	done    chan struct{}
	result  *types.Result
}

// Spawn starts a command in the background and returns immediately,
// regardless of how long the child runs.
func (e *Engine) Spawn(args []string, cmd *Command) (*Controller, error) {
	if err := validateSpawn(args, cmd); err != nil {
		return nil, err
	}
	p := e.prepare(args, cmd)
	c := exec.Command(p.argv[0], p.argv[1:]...)
	c.Dir = p.dir
	c.Env = p.env
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	ctl := &Controller{
		Name:    cmd.spawnName(),
		command: args,
		done:    make(chan struct{}),
	}

	// Pipes are created by hand rather than through StdinPipe and
	// friends: Wait would close exec-managed pipes on exit, yanking
	// them out from under a caller still reading.
	var parentEnds []io.Closer
	var childEnds []*os.File
	closeAll := func(cs []io.Closer) {
		for _, c := range cs {
			_ = c.Close()
		}
	}

	switch bgMode(cmd.stdinMode()) {
	case StreamPipe:
		r, w, err := os.Pipe()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create stdin pipe")
		}
		c.Stdin = r
		ctl.Stdin = w
		parentEnds = append(parentEnds, w)
		childEnds = append(childEnds, r)
	case StreamInherit:
		c.Stdin = os.Stdin
	}
	if cmd != nil && cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	switch bgMode(cmd.stdoutMode()) {
	case StreamPipe:
		r, w, err := os.Pipe()
		if err != nil {
			closeAll(parentEnds)
			return nil, errors.Wrap(err, "failed to create stdout pipe")
		}
		c.Stdout = w
		ctl.Stdout = r
		parentEnds = append(parentEnds, r)
		childEnds = append(childEnds, w)
	case StreamInherit:
		c.Stdout = os.Stdout
	}

	switch bgMode(cmd.stderrMode()) {
	case StreamPipe:
		r, w, err := os.Pipe()
		if err != nil {
			closeAll(parentEnds)
			return nil, errors.Wrap(err, "failed to create stderr pipe")
		}
		c.Stderr = w
		ctl.Stderr = r
		parentEnds = append(parentEnds, r)
		childEnds = append(childEnds, w)
	case StreamInherit:
		c.Stderr = os.Stderr
	case StreamMergeStdout:
		c.Stderr = c.Stdout
	}

	start := time.Now()
	if err := c.Start(); err != nil {
		closeAll(parentEnds)
		for _, f := range childEnds {
			_ = f.Close()
		}
		ctl.StartedAt = start
		ctl.resolve(types.NewStartFailure(args, err))
		return ctl, nil
	}

	// The child holds its own descriptors now.
	for _, f := range childEnds {
		_ = f.Close()
	}

	ctl.Pid = c.Process.Pid
	ctl.StartedAt = start
	ctl.proc = c.Process

	zap.S().Debugw("spawned background process",
		"name", ctl.Name,
		"pid", ctl.Pid,
		"argv", p.argv)

	go func() {
		err := c.Wait()
		ctl.resolve(buildResult(args, c, err, time.Since(start), false, nil, nil))
	}()

	return ctl, nil
}

func (ctl *Controller) resolve(res *types.Result) {
	ctl.result = res
	close(ctl.done)
}

// Executing reports whether the process is still running.
func (ctl *Controller) Executing() bool {
	select {
	case <-ctl.done:
		return false
	default:
		return true
	}
}

// Kill delivers sig to the process. It errors once the process has
// been resolved.
func (ctl *Controller) Kill(sig syscall.Signal) error {
	select {
	case <-ctl.done:
		return errors.Newf("process %d already resolved", ctl.Pid)
	default:
	}
	if ctl.proc == nil {
		return errors.New("process never started")
	}
	return ctl.proc.Signal(sig)
}

// Result blocks until the process exits and returns its memoized
// Result. With a wait timeout, an expiry returns (nil, false) without
// resolving; the call can be retried later. Repeated calls after
// resolution return the identical cached value.
func (ctl *Controller) Result(timeout ...time.Duration) (*types.Result, bool) {
	if len(timeout) > 0 && timeout[0] > 0 {
		select {
		case <-ctl.done:
		case <-time.After(timeout[0]):
			return nil, false
		}
	} else {
		<-ctl.done
	}
	return ctl.result, true
}

func (c *Command) spawnName() string {
	if c != nil && c.Name != "" {
		return c.Name
	}
	return uuid.NewString()
}

// validateSpawn rejects stream modes that make no sense without a
// foreground wait.
func validateSpawn(args []string, cmd *Command) error {
	if err := validateArgs(args); err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}
	if cmd.Timeout != 0 {
		return errors.New("background processes have no implicit timeout; signal the controller instead")
	}
	for _, m := range []StreamMode{cmd.StdinMode, cmd.StdoutMode} {
		switch m {
		case StreamDefault, StreamInherit, StreamNull, StreamPipe:
		default:
			return errors.Newf("invalid stream mode %s for background execution", m)
		}
	}
	switch cmd.StderrMode {
	case StreamDefault, StreamInherit, StreamNull, StreamPipe, StreamMergeStdout:
	default:
		return errors.Newf("invalid stderr mode %s for background execution", cmd.StderrMode)
	}
	return nil
}
