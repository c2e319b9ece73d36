package executor

import (
	"io"
	"time"
)

// StreamMode selects how one of the child's standard streams is wired.
type StreamMode int

const (
	// StreamDefault resolves to inherit for foreground execution and
	// to null for background processes.
	StreamDefault StreamMode = iota
	// StreamInherit connects the stream to the parent's descriptor.
	StreamInherit
	// StreamNull connects the stream to the null device.
	StreamNull
	// StreamCapture collects the stream into the Result. Foreground only.
	StreamCapture
	// StreamPipe hands the caller a pipe end. Background only.
	StreamPipe
	// StreamMergeStdout redirects stderr into stdout before spawn.
	// Valid for stderr only.
	StreamMergeStdout
)

func (m StreamMode) String() string {
	switch m {
	case StreamDefault:
		return "default"
	case StreamInherit:
		return "inherit"
	case StreamNull:
		return "null"
	case StreamCapture:
		return "capture"
	case StreamPipe:
		return "pipe"
	case StreamMergeStdout:
		return "merge_stdout"
	default:
		return "unknown"
	}
}

// Command - Per-call execution options. The zero value runs the command
// in the current working directory with inherited stdio and the full
// wrapper chain enabled.
type Command struct {
	// Env is merged on top of the inherited environment.
	Env map[string]string

	// Dir is the working directory. Relative paths resolve against the
	// engine's ambient directory stack.
	Dir string

	// Name identifies this invocation in the propagated call tree.
	// Also used as the Controller name for background processes.
	Name string

	// Stdin, when set, feeds the child's standard input regardless of
	// StdinMode.
	Stdin io.Reader

	StdinMode  StreamMode
	StdoutMode StreamMode
	StderrMode StreamMode

	// Timeout bounds the foreground wait. Zero means no timeout; a
	// negative value is a programmer error.
	Timeout time.Duration

	// Raw skips the whole wrapper chain and context-env injection.
	Raw bool

	// Package-manager wrapper control. ForceBundler wraps even when the
	// command is not on the allow-list; NoBundler disables the wrapper.
	ForceBundler bool
	NoBundler    bool

	// Version-manager wrapper control.
	ForceVersionManager bool
	NoVersionManager    bool

	// Dotenv enables the env-loader wrapper. Never automatic.
	Dotenv bool

	// KeepPollution disables the package-manager pollution cleanup.
	KeepPollution bool

	// NoContextEnv disables injection of the runtime-context variables
	// (<PREFIX>_AGENT_MODE and friends) and the call tree.
	NoContextEnv bool
}

// invocationName returns the name used for call-tree propagation,
// defaulting to the bare command name.
func (c *Command) invocationName(args []string) string {
	if c != nil && c.Name != "" {
		return c.Name
	}
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func (c *Command) stdinMode() StreamMode {
	if c == nil {
		return StreamDefault
	}
	return c.StdinMode
}

func (c *Command) stdoutMode() StreamMode {
	if c == nil {
		return StreamDefault
	}
	return c.StdoutMode
}

func (c *Command) stderrMode() StreamMode {
	if c == nil {
		return StreamDefault
	}
	return c.StderrMode
}

// fgMode resolves StreamDefault for foreground execution.
func fgMode(m StreamMode) StreamMode {
	if m == StreamDefault {
		return StreamInherit
	}
	return m
}

// bgMode resolves StreamDefault for background processes.
func bgMode(m StreamMode) StreamMode {
	if m == StreamDefault {
		return StreamNull
	}
	return m
}
