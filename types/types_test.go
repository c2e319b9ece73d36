package types

import (
	"syscall"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestResult_Predicates(t *testing.T) {
	ok := NewExited([]string{"true"}, 0, 100, time.Millisecond)
	assert.True(t, ok.Success())
	assert.False(t, ok.Failed())
	assert.False(t, ok.Signaled())
	assert.False(t, ok.FailedToStart())

	bad := NewExited([]string{"false"}, 1, 101, time.Millisecond)
	assert.False(t, bad.Success())
	assert.True(t, bad.Failed())

	sig := NewSignaled([]string{"sleep", "10"}, syscall.SIGKILL, 102, time.Second)
	assert.False(t, sig.Success())
	assert.True(t, sig.Failed())
	assert.True(t, sig.Signaled())
	assert.Nil(t, sig.ExitCode)

	boom := NewStartFailure([]string{"no_such_binary"}, errors.New("executable file not found"))
	assert.True(t, boom.Failed())
	assert.True(t, boom.FailedToStart())
	assert.Contains(t, boom.StartErr.Error(), "not found")
}

// A captured empty stream must stay distinguishable from a stream that
// was never captured.
func TestResult_CapturedAbsenceVsEmpty(t *testing.T) {
	empty := ""
	res := NewExited([]string{"true"}, 0, 1, 0)
	res.Stdout = &empty

	assert.NotNil(t, res.Stdout)
	assert.Equal(t, "", res.CapturedStdout())

	assert.Nil(t, res.Stderr)
	assert.Equal(t, "", res.CapturedStderr())
}

func TestResult_ThenChainsOnSuccess(t *testing.T) {
	calls := 0
	step := func() *Result {
		calls++
		return NewExited([]string{"step"}, 0, 1, 0)
	}

	final := NewExited([]string{"first"}, 0, 1, 0).
		Then(step).
		Then(step)

	assert.Equal(t, 2, calls)
	assert.True(t, final.Success())
	assert.Equal(t, []string{"step"}, final.Command)
}

func TestResult_ThenShortCircuitsOnFailure(t *testing.T) {
	failed := NewExited([]string{"false"}, 1, 1, 0)

	called := false
	final := failed.Then(func() *Result {
		called = true
		return NewExited([]string{"never"}, 0, 1, 0)
	})

	assert.False(t, called)
	assert.Same(t, failed, final)
}

func TestMap(t *testing.T) {
	out := "v1.2.3\n"
	ok := NewExited([]string{"tool", "--version"}, 0, 1, 0)
	ok.Stdout = &out

	got, ran := Map(ok, func(stdout string) string {
		return stdout[:6]
	})
	assert.True(t, ran)
	assert.Equal(t, "v1.2.3", got)

	bad := NewExited([]string{"false"}, 1, 1, 0)
	_, ran = Map(bad, func(stdout string) string { return stdout })
	assert.False(t, ran)
}

func TestResult_ExitOnFailure(t *testing.T) {
	var exited []int
	orig := exitFunc
	exitFunc = func(code int) { exited = append(exited, code) }
	defer func() { exitFunc = orig }()

	ok := NewExited([]string{"true"}, 0, 1, 0)
	assert.Same(t, ok, ok.ExitOnFailure())
	assert.Empty(t, exited)

	NewExited([]string{"false"}, 3, 1, 0).ExitOnFailure()
	assert.Equal(t, []int{3}, exited)

	// No exit code from the child falls back to the fixed code.
	NewSignaled([]string{"sleep"}, syscall.SIGTERM, 1, 0).ExitOnFailure()
	assert.Equal(t, []int{3, FallbackExitCode}, exited)
}
