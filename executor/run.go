package executor

import (
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cnosuke/cmdrun/types"
)

// execute spawns a prepared command in the foreground and waits for
// it. Nonzero exits, signals, start failures and timeouts all come
// back inside the Result.
func (e *Engine) execute(args []string, cmd *Command) *types.Result {
	p := e.prepare(args, cmd)

	if cmd.stdoutMode() == StreamCapture || cmd.stderrMode() == StreamCapture {
		return e.captureRun(args, p, cmd)
	}
	return e.directRun(args, p, cmd)
}

// directRun handles the inherit/null strategies: no pipes, the child
// writes straight to our descriptors or the null device.
func (e *Engine) directRun(args []string, p *prepared, cmd *Command) *types.Result {
	c := e.newCmd(p, cmd)

	if fgMode(cmd.stdoutMode()) == StreamInherit {
		c.Stdout = os.Stdout
	}
	switch fgMode(cmd.stderrMode()) {
	case StreamInherit:
		c.Stderr = os.Stderr
	case StreamMergeStdout:
		c.Stderr = c.Stdout
	}

	start := time.Now()
	if err := c.Start(); err != nil {
		zap.S().Debugw("command failed to start", "argv", p.argv, "error", err)
		return types.NewStartFailure(args, err)
	}

	waitErr, timedOut := e.waitWithTimeout(c, timeoutOf(cmd))
	return buildResult(args, c, waitErr, time.Since(start), timedOut, nil, nil)
}

// newCmd builds the exec.Cmd common to all strategies. The child gets
// its own process group so timeout escalation can reach its whole
// tree.
func (e *Engine) newCmd(p *prepared, cmd *Command) *exec.Cmd {
	c := exec.Command(p.argv[0], p.argv[1:]...)
	c.Dir = p.dir
	c.Env = p.env
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if cmd != nil && cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	} else if fgMode(cmd.stdinMode()) == StreamInherit {
		c.Stdin = os.Stdin
	}
	return c
}

// waitWithTimeout waits for the child, escalating SIGTERM then SIGKILL
// when the soft deadline expires. The second return reports whether
// escalation fired; when it did the wait is bounded by the grace
// period.
func (e *Engine) waitWithTimeout(c *exec.Cmd, timeout time.Duration) (error, bool) {
	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	if timeout <= 0 {
		return <-done, false
	}

	select {
	case err := <-done:
		return err, false
	case <-time.After(timeout):
	}

	zap.S().Debugw("timeout expired, escalating",
		"pid", c.Process.Pid,
		"grace_period", e.gracePeriod)
	killGroup(c, syscall.SIGTERM)

	select {
	case err := <-done:
		return err, true
	case <-time.After(e.gracePeriod):
	}

	killGroup(c, syscall.SIGKILL)
	return <-done, true
}

// killGroup signals the child's process group, falling back to the
// process itself when the group is gone.
func killGroup(c *exec.Cmd, sig syscall.Signal) {
	if c.Process == nil {
		return
	}
	if err := syscall.Kill(-c.Process.Pid, sig); err != nil {
		_ = c.Process.Signal(sig)
	}
}

// buildResult maps the outcome of a wait onto the Result invariant:
// exactly one of exited, signaled or failed-to-start. A fired timeout
// escalation synthesizes a killed-by-timeout status instead of the
// racy real one.
func buildResult(args []string, c *exec.Cmd, waitErr error, d time.Duration, timedOut bool, stdout, stderr *string) *types.Result {
	pid := 0
	if c.Process != nil {
		pid = c.Process.Pid
	}

	var res *types.Result
	switch {
	case timedOut:
		res = types.NewSignaled(args, syscall.SIGKILL, pid, d)
		res.TimedOut = true
	case waitErr == nil:
		res = types.NewExited(args, 0, pid, d)
	default:
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			// Wait itself failed; treat as a start-boundary failure so
			// the cause stays visible.
			res = types.NewStartFailure(args, waitErr)
			res.Pid = pid
			res.Duration = d
			break
		}
		if ws, isWait := exitErr.Sys().(syscall.WaitStatus); isWait && ws.Signaled() {
			res = types.NewSignaled(args, ws.Signal(), pid, d)
		} else {
			res = types.NewExited(args, exitErr.ExitCode(), pid, d)
		}
	}

	res.Stdout = stdout
	res.Stderr = stderr
	return res
}

func timeoutOf(cmd *Command) time.Duration {
	if cmd == nil {
		return 0
	}
	return cmd.Timeout
}

// copyStream drains one pipe into w until EOF or pipe teardown.
func copyStream(w io.Writer, r io.Reader) {
	_, _ = io.Copy(w, r)
}
