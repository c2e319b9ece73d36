package executor

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cnosuke/cmdrun/types"
)

// captureRun handles any strategy involving capture. Both output
// streams are captured internally; buffers whose requested mode was
// null are discarded before the Result is built, so the caller sees
// "not captured" rather than an empty string it never asked for.
//
// Reading two pipes and waiting for the exit status concurrently is
// the one place with real coordination requirements: a reader per
// stream prevents deadlock on a full pipe buffer, and the deadline
// race keeps the wait bounded when a timeout is set.
func (e *Engine) captureRun(args []string, p *prepared, cmd *Command) *types.Result {
	c := e.newCmd(p, cmd)

	outPipe, err := c.StdoutPipe()
	if err != nil {
		return types.NewStartFailure(args, err)
	}

	merge := cmd.stderrMode() == StreamMergeStdout
	var errPipe io.ReadCloser
	if merge {
		// StdoutPipe has installed the pipe's write end as c.Stdout;
		// pointing stderr at it redirects fd 2 into fd 1 at spawn.
		c.Stderr = c.Stdout
	} else {
		errPipe, err = c.StderrPipe()
		if err != nil {
			return types.NewStartFailure(args, err)
		}
	}

	start := time.Now()
	if err := c.Start(); err != nil {
		zap.S().Debugw("command failed to start", "argv", p.argv, "error", err)
		return types.NewStartFailure(args, err)
	}

	// Both streams are always accumulated; a stream whose requested
	// mode is inherit is teed through to our own descriptor as well
	// (the mixed strategy).
	var outBuf, errBuf bytes.Buffer
	outW := io.Writer(&outBuf)
	if fgMode(cmd.stdoutMode()) == StreamInherit {
		outW = io.MultiWriter(&outBuf, os.Stdout)
	}
	errW := io.Writer(&errBuf)
	if fgMode(cmd.stderrMode()) == StreamInherit {
		errW = io.MultiWriter(&errBuf, os.Stderr)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		copyStream(outW, outPipe)
	}()
	if errPipe != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			copyStream(errW, errPipe)
		}()
	}

	readersDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(readersDone)
	}()

	timedOut := e.joinReaders(c, readersDone, timeoutOf(cmd))

	// Wait must come after the reads; in the escalation path it also
	// tears the pipes down, cancelling any reader still blocked.
	waitErr := c.Wait()
	d := time.Since(start)

	// Wait has closed the pipe read ends, so a reader still blocked
	// after escalation returns now. The buffers are only safe to read
	// once both readers have finished.
	<-readersDone

	stdout, stderr := outBuf.String(), errBuf.String()
	var stdoutPtr, stderrPtr *string
	if cmd.stdoutMode() == StreamCapture {
		stdoutPtr = &stdout
	}
	if cmd.stderrMode() == StreamCapture {
		stderrPtr = &stderr
	}

	return buildResult(args, c, waitErr, d, timedOut, stdoutPtr, stderrPtr)
}

// joinReaders waits for both stream readers, racing them against the
// soft deadline when one is set. On expiry: graceful signal, grace
// period, forceful kill, then a last bounded join so the caller is
// never left hanging.
func (e *Engine) joinReaders(c *exec.Cmd, readersDone <-chan struct{}, timeout time.Duration) bool {
	if timeout <= 0 {
		<-readersDone
		return false
	}

	select {
	case <-readersDone:
		return false
	case <-time.After(timeout):
	}

	zap.S().Debugw("capture timeout expired, escalating",
		"pid", c.Process.Pid,
		"grace_period", e.gracePeriod)
	killGroup(c, syscall.SIGTERM)

	select {
	case <-readersDone:
		return true
	case <-time.After(e.gracePeriod):
	}

	killGroup(c, syscall.SIGKILL)

	select {
	case <-readersDone:
	case <-time.After(e.gracePeriod):
		// A descendant still holds the pipe open; Wait will close it.
	}
	return true
}
