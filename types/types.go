package types

import (
	"os"
	"syscall"
	"time"
)

// FallbackExitCode is used by ExitOnFailure when the child never
// produced an exit code (start failure or signal termination).
const FallbackExitCode = 1

// exitFunc is swapped in tests; ExitOnFailure must never be exercised
// for real inside the test binary.
var exitFunc = os.Exit

// Result - Immutable record of a finished or failed-to-start process.
//
// Exactly one of ExitCode, Signal or StartErr is set. Stdout/Stderr are
// nil unless that stream was run in capture mode; a captured empty
// stream is the empty string, which is distinct from "not captured".
type Result struct {
	// Command is the argv as given by the caller, not the wrapped form.
	Command []string

	// ExitCode is set iff the process exited normally.
	ExitCode *int

	// Signal is set iff the process was terminated by a signal.
	Signal *syscall.Signal

	Stdout *string
	Stderr *string

	Pid      int
	Duration time.Duration

	// StartErr carries the OS error when the process never started
	// (executable not found, permission denied).
	StartErr error

	// TimedOut is true when termination was caused by the engine's
	// timeout escalation rather than the process's own exit.
	TimedOut bool
}

// NewExited builds a Result for a normally exited process.
func NewExited(command []string, code int, pid int, d time.Duration) *Result {
	return &Result{Command: command, ExitCode: &code, Pid: pid, Duration: d}
}

// NewSignaled builds a Result for a signal-terminated process.
func NewSignaled(command []string, sig syscall.Signal, pid int, d time.Duration) *Result {
	return &Result{Command: command, Signal: &sig, Pid: pid, Duration: d}
}

// NewStartFailure builds a Result for a process that never started.
func NewStartFailure(command []string, cause error) *Result {
	return &Result{Command: command, StartErr: cause}
}

// Success reports whether the process exited with code zero.
func (r *Result) Success() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}

// Failed reports a start failure, a signal termination or a nonzero exit.
func (r *Result) Failed() bool {
	return !r.Success()
}

// Signaled reports whether the process was terminated by a signal.
func (r *Result) Signaled() bool {
	return r.Signal != nil
}

// FailedToStart reports whether the process never started.
func (r *Result) FailedToStart() bool {
	return r.StartErr != nil
}

// CapturedStdout returns the captured stdout, or "" when the stream was
// not captured. Use the Stdout field to distinguish the two.
func (r *Result) CapturedStdout() string {
	if r.Stdout == nil {
		return ""
	}
	return *r.Stdout
}

// CapturedStderr returns the captured stderr, or "" when the stream was
// not captured.
func (r *Result) CapturedStderr() string {
	if r.Stderr == nil {
		return ""
	}
	return *r.Stderr
}

// Then chains a follow-up command: if this Result is successful the
// block runs and its Result is returned, otherwise the chain
// short-circuits and the original failed Result is returned unchanged.
func (r *Result) Then(fn func() *Result) *Result {
	if !r.Success() {
		return r
	}
	return fn()
}

// Map applies fn to the captured stdout of a successful Result. The
// second return is false when the Result failed and fn was not run.
func Map[T any](r *Result, fn func(stdout string) T) (T, bool) {
	if !r.Success() {
		var zero T
		return zero, false
	}
	return fn(r.CapturedStdout()), true
}

// ExitOnFailure terminates the calling process with the child's exit
// code (or FallbackExitCode if the child never produced one) when the
// Result is a failure. On success it returns the Result for further
// chaining.
func (r *Result) ExitOnFailure() *Result {
	if r.Success() {
		return r
	}
	code := FallbackExitCode
	if r.ExitCode != nil {
		code = *r.ExitCode
	}
	exitFunc(code)
	return r
}
