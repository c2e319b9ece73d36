package executor

import (
	"os"
	"syscall"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// replaceFunc is the process-replace seam. Replacing the process image
// is untestable in-process, so tests inject a fake.
type replaceFunc func(argv0 string, argv []string, env []string) error

func sysReplace(argv0 string, argv []string, env []string) error {
	return syscall.Exec(argv0, argv, env)
}

// WithReplaceFunc overrides the process-replace syscall. Test use only.
func WithReplaceFunc(fn replaceFunc) Option {
	return func(e *Engine) { e.replaceFn = fn }
}

// Replace replaces the current process image with the prepared
// command. On success it never returns; the error return covers
// invalid arguments and a failed exec.
func (e *Engine) Replace(args []string, cmd *Command) error {
	if err := validateArgs(args); err != nil {
		return err
	}
	p := e.prepare(args, cmd)

	argv0 := p.argv[0]
	if _, err := os.Stat(argv0); err != nil {
		return errors.Wrapf(err, "cannot replace process with %q", argv0)
	}

	if p.dir != "" {
		if err := os.Chdir(p.dir); err != nil {
			return errors.Wrap(err, "failed to change directory before exec")
		}
	}

	zap.S().Debugw("replacing process image", "argv", p.argv)
	if err := e.replaceFn(argv0, p.argv, p.env); err != nil {
		return errors.Wrapf(err, "exec %q failed", argv0)
	}
	return nil
}
