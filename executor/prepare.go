package executor

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

// prepared is the spawn-ready form of a command: final argv after the
// wrapper chain, full environment and resolved working directory.
type prepared struct {
	argv []string
	env  []string
	dir  string
}

// wrapper is one stage of the wrapper chain: a pure rewrite of
// (argv, env). Stages are composed left-to-right, so later stages end
// up outermost around the literal command.
type wrapper func(argv []string, env map[string]string) ([]string, map[string]string)

var defaultDotenvLoader = []string{"dotenvx", "run", "--"}

// prepare turns caller argv plus options into the final spawn shape.
// It is a pure transformation: no process is touched here.
func (e *Engine) prepare(args []string, cmd *Command) *prepared {
	dir := e.resolveDir(cmd)

	env := environMap()
	for k, v := range e.cfg.Exec.Environment {
		env[k] = v
	}

	argv := append([]string(nil), args...)
	if cmd == nil || !cmd.Raw {
		for _, stage := range e.wrapperChain(args, cmd, dir) {
			argv, env = stage(argv, env)
		}
		if cmd == nil || !cmd.NoContextEnv {
			e.injectContextEnv(env, cmd.invocationName(args))
		}
	}

	if cmd != nil {
		for k, v := range cmd.Env {
			env[k] = v
		}
	}

	e.applySearchPaths(env)

	if path, err := e.resolveBinaryPath(argv[0]); err == nil {
		argv[0] = path
	}
	// An unresolvable binary is left as-is so the spawn reports the
	// real OS error as a start failure.

	zap.S().Debugw("prepared command",
		"argv", argv,
		"dir", dir)

	return &prepared{argv: argv, env: envSlice(env), dir: dir}
}

// wrapperChain builds the ordered stages for this call. Order is fixed:
// pollution cleanup first, then package-manager wrapper (innermost),
// version-manager wrapper, and the opt-in dotenv loader outermost.
func (e *Engine) wrapperChain(args []string, cmd *Command, dir string) []wrapper {
	var chain []wrapper

	if cmd == nil || !cmd.KeepPollution {
		chain = append(chain, e.pollutionCleanup())
	}
	if e.shouldWrapBundler(args, cmd, dir) {
		chain = append(chain, prefixWrapper("bundle", "exec"))
	}
	if e.shouldWrapVersionManager(args, cmd, dir) {
		chain = append(chain, prefixWrapper(e.cfg.Exec.VersionManager, "exec", "--"))
	}
	if cmd != nil && cmd.Dotenv {
		chain = append(chain, prefixWrapper(e.dotenvLoaderArgs()...))
	}
	return chain
}

// dotenvLoaderArgs builds the loader invocation, pointing it at the
// configured env file when one is set. The file flag goes before the
// trailing "--" separator so it is read by the loader, not the command.
func (e *Engine) dotenvLoaderArgs() []string {
	loader := e.cfg.Exec.DotenvLoader
	if len(loader) == 0 {
		loader = defaultDotenvLoader
	}
	out := append([]string(nil), loader...)
	if file := e.cfg.Exec.DotenvFile; file != "" {
		if n := len(out); n > 0 && out[n-1] == "--" {
			out = append(out[:n-1], "-f", file, "--")
		} else {
			out = append(out, "-f", file)
		}
	}
	return out
}

// prefixWrapper prepends the given words to argv, leaving env alone.
func prefixWrapper(words ...string) wrapper {
	return func(argv []string, env map[string]string) ([]string, map[string]string) {
		return append(append([]string(nil), words...), argv...), env
	}
}

// pollutionCleanup removes bundler-set variables inherited from an
// enclosing package-manager invocation. It only fires when such a
// context is actually active.
func (e *Engine) pollutionCleanup() wrapper {
	keys := e.cfg.Exec.PollutionKeys
	return func(argv []string, env map[string]string) ([]string, map[string]string) {
		active := false
		for _, k := range keys {
			if _, ok := env[k]; ok {
				active = true
				break
			}
		}
		if !active {
			return argv, env
		}
		for _, k := range keys {
			delete(env, k)
		}
		return argv, env
	}
}

func (e *Engine) shouldWrapBundler(args []string, cmd *Command, dir string) bool {
	if cmd != nil && cmd.NoBundler {
		return false
	}
	if filepath.Base(args[0]) == "bundle" {
		return false
	}
	if !e.detect.manifestPresent(dir, e.cfg.Exec.ManifestFile) {
		return false
	}
	if cmd != nil && cmd.ForceBundler {
		return true
	}
	name := filepath.Base(args[0])
	for _, allowed := range e.cfg.Exec.BundlerCommands {
		if name == allowed {
			return true
		}
	}
	return false
}

func (e *Engine) shouldWrapVersionManager(args []string, cmd *Command, dir string) bool {
	if cmd != nil && cmd.NoVersionManager {
		return false
	}
	tool := e.cfg.Exec.VersionManager
	if tool == "" || filepath.Base(args[0]) == tool {
		return false
	}
	if cmd != nil && cmd.ForceVersionManager {
		return true
	}
	return e.detect.pinPresent(dir, e.cfg.Exec.VersionPinFiles)
}

// resolveDir picks the working directory: explicit option first
// (relative paths resolve against the ambient stack), then the ambient
// stack top.
func (e *Engine) resolveDir(cmd *Command) string {
	if cmd != nil && cmd.Dir != "" {
		if filepath.IsAbs(cmd.Dir) {
			return cmd.Dir
		}
		return filepath.Join(e.dirs.Current(), cmd.Dir)
	}
	return e.dirs.Current()
}

// applySearchPaths rewrites PATH according to the configured behavior,
// mirroring prepend/append/replace semantics.
func (e *Engine) applySearchPaths(env map[string]string) {
	if len(e.cfg.Exec.SearchPaths) == 0 {
		return
	}
	joined := strings.Join(e.cfg.Exec.SearchPaths, string(os.PathListSeparator))
	path := env["PATH"]
	switch e.cfg.Exec.PathBehavior {
	case "append":
		env["PATH"] = path + string(os.PathListSeparator) + joined
	case "replace":
		env["PATH"] = joined
	default: // prepend
		env["PATH"] = joined + string(os.PathListSeparator) + path
	}
}

// resolveBinaryPath resolves the command to an absolute path using the
// configured search paths first, then the system PATH.
func (e *Engine) resolveBinaryPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	for _, dir := range e.cfg.Exec.SearchPaths {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && isExecutable(info) {
			return candidate, nil
		}
	}
	if e.cfg.Exec.PathBehavior == "replace" && len(e.cfg.Exec.SearchPaths) > 0 {
		return "", exec.ErrNotFound
	}
	return exec.LookPath(name)
}

// isExecutable checks the Unix execute bits.
func isExecutable(info os.FileInfo) bool {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return (stat.Mode & 0111) != 0
	}
	return true
}

// environMap converts os.Environ into a mutable map.
func environMap() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return env
}

// envSlice converts the map back to KEY=VALUE form for os/exec.
func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
