package executor

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/cnosuke/cmdrun/config"
	"github.com/cnosuke/cmdrun/types"
)

// CommandExecutor is the engine's public surface: the execution entry
// points described in the data-flow caller -> preparer -> executor.
// Subprocess outcomes (any exit code, signals, start failures,
// timeouts) are always reported inside the Result; the error return is
// reserved for invalid use of the API itself.
type CommandExecutor interface {
	// Run executes a command in the foreground without capturing output.
	Run(args []string, cmd *Command) (*types.Result, error)

	// RunOK is the test-success variant: it runs with both output
	// streams discarded and reports whether the command exited zero.
	RunOK(args []string, cmd *Command) bool

	// Capture executes a command with both output streams captured.
	Capture(args []string, cmd *Command) (*types.Result, error)

	// Shell runs a command line through the shell.
	Shell(cmdline string, cmd *Command) (*types.Result, error)

	// ShellOK is the shell test-success variant.
	ShellOK(cmdline string, cmd *Command) bool

	// Spawn starts a background process and returns its Controller.
	Spawn(args []string, cmd *Command) (*Controller, error)

	// Replace replaces the current process image with the command.
	// It only returns on failure.
	Replace(args []string, cmd *Command) error
}

// Engine implements CommandExecutor.
type Engine struct {
	cfg         *config.Config
	rctx        RuntimeContext
	detect      *detector
	dirs        Dirstack
	gracePeriod time.Duration
	replaceFn   replaceFunc
}

var _ CommandExecutor = (*Engine)(nil)

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithRuntimeContext sets the collaborator supplying the environment
// variables propagated to children.
func WithRuntimeContext(rctx RuntimeContext) Option {
	return func(e *Engine) { e.rctx = rctx }
}

// WithDirstack sets the ambient working-directory stack.
func WithDirstack(dirs Dirstack) Option {
	return func(e *Engine) { e.dirs = dirs }
}

// New creates an Engine from the given configuration.
func New(cfg *config.Config, opts ...Option) *Engine {
	workingDir := cfg.Exec.DefaultWorkingDir
	if workingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workingDir = wd
		} else if home := os.Getenv("HOME"); home != "" {
			workingDir = home
		} else {
			workingDir = "/tmp"
		}
	}
	if _, err := os.Stat(workingDir); os.IsNotExist(err) {
		zap.S().Warnw("default working directory does not exist, falling back to /tmp",
			"original_dir", workingDir)
		workingDir = "/tmp"
	}

	e := &Engine{
		cfg:         cfg,
		rctx:        NewAmbientContext(cfg.Exec.EnvPrefix),
		detect:      newDetector(),
		dirs:        NewDirstack(workingDir),
		gracePeriod: cfg.GracePeriodDuration(),
		replaceFn:   sysReplace,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a command in the foreground.
func (e *Engine) Run(args []string, cmd *Command) (*types.Result, error) {
	if err := validateForeground(args, cmd); err != nil {
		return nil, err
	}
	return e.execute(args, cmd), nil
}

// RunOK runs the command with both output streams discarded and
// reports success. Stream modes on cmd are overridden; use Run when
// the output matters.
func (e *Engine) RunOK(args []string, cmd *Command) bool {
	quiet := quietCommand(cmd)
	res, err := e.Run(args, quiet)
	if err != nil {
		zap.S().Warnw("invalid RunOK invocation", "args", args, "error", err)
		return false
	}
	return res.Success()
}

// Capture executes a command with both output streams captured.
func (e *Engine) Capture(args []string, cmd *Command) (*types.Result, error) {
	return e.Run(args, withStreams(cmd, StreamCapture, StreamCapture))
}

// Shell runs a command line through `sh -c`.
func (e *Engine) Shell(cmdline string, cmd *Command) (*types.Result, error) {
	if strings.TrimSpace(cmdline) == "" {
		return nil, errors.New("empty command line")
	}
	return e.Run([]string{"sh", "-c", cmdline}, cmd)
}

// ShellOK runs a command line through the shell and reports success.
func (e *Engine) ShellOK(cmdline string, cmd *Command) bool {
	if strings.TrimSpace(cmdline) == "" {
		return false
	}
	return e.RunOK([]string{"sh", "-c", cmdline}, cmd)
}

// quietCommand copies cmd with both output streams forced to null,
// regardless of what the caller requested.
func quietCommand(cmd *Command) *Command {
	var c Command
	if cmd != nil {
		c = *cmd
	}
	c.StdoutMode = StreamNull
	c.StderrMode = StreamNull
	return &c
}

// withStreams copies cmd with the given stdout/stderr modes, keeping a
// caller-requested merge or null in place.
func withStreams(cmd *Command, stdout, stderr StreamMode) *Command {
	var c Command
	if cmd != nil {
		c = *cmd
	}
	if c.StdoutMode == StreamDefault {
		c.StdoutMode = stdout
	}
	if c.StderrMode == StreamDefault {
		c.StderrMode = stderr
	}
	return &c
}

// validateForeground rejects caller programming errors. These are the
// only conditions under which the engine returns a non-nil error for a
// foreground call.
func validateForeground(args []string, cmd *Command) error {
	if err := validateArgs(args); err != nil {
		return err
	}
	if cmd == nil {
		return nil
	}
	if cmd.Timeout < 0 {
		return errors.Newf("timeout must be positive, got %s", cmd.Timeout)
	}
	switch cmd.StdinMode {
	case StreamDefault, StreamInherit, StreamNull:
	default:
		return errors.Newf("invalid stdin mode %s", cmd.StdinMode)
	}
	switch cmd.StdoutMode {
	case StreamDefault, StreamInherit, StreamNull, StreamCapture:
	default:
		return errors.Newf("invalid stdout mode %s for foreground execution", cmd.StdoutMode)
	}
	switch cmd.StderrMode {
	case StreamDefault, StreamInherit, StreamNull, StreamCapture, StreamMergeStdout:
	default:
		return errors.Newf("invalid stderr mode %s for foreground execution", cmd.StderrMode)
	}
	return nil
}

func validateArgs(args []string) error {
	if len(args) == 0 {
		return errors.New("empty command")
	}
	for _, a := range args {
		if a != "" {
			return nil
		}
	}
	return errors.New("command contains only empty arguments")
}
