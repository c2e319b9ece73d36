package executor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envOf(p *prepared) map[string]string {
	env := make(map[string]string)
	for _, kv := range p.env {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return env
}

// argvNames strips any path resolution so wrapping can be asserted
// regardless of what happens to be installed.
func argvNames(p *prepared) []string {
	names := make([]string, len(p.argv))
	for i, a := range p.argv {
		names[i] = filepath.Base(a)
	}
	return names
}

func TestPrepare_NoWrappingOutsideProject(t *testing.T) {
	e := newTestEngine(t)

	p := e.prepare([]string{"rake", "build"}, nil)
	assert.Equal(t, []string{"rake", "build"}, argvNames(p))
}

func TestPrepare_BundlerWrapsAllowListedCommands(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Gemfile", "source 'https://rubygems.org'\n")
	e := newTestEngine(t)

	p := e.prepare([]string{"rake", "build"}, &Command{Dir: dir})
	assert.Equal(t, []string{"bundle", "exec", "rake", "build"}, argvNames(p))

	// Not on the allow-list: left alone.
	p = e.prepare([]string{"ls"}, &Command{Dir: dir})
	assert.Equal(t, []string{"ls"}, argvNames(p))

	// Forced: wrapped regardless of the allow-list.
	p = e.prepare([]string{"ls"}, &Command{Dir: dir, ForceBundler: true})
	assert.Equal(t, []string{"bundle", "exec", "ls"}, argvNames(p))

	// Disabled beats presence.
	p = e.prepare([]string{"rake"}, &Command{Dir: dir, NoBundler: true})
	assert.Equal(t, []string{"rake"}, argvNames(p))

	// Already invoking the manager: never double-wrapped.
	p = e.prepare([]string{"bundle", "install"}, &Command{Dir: dir})
	assert.Equal(t, []string{"bundle", "install"}, argvNames(p))
}

func TestPrepare_VersionManagerWrapsOnPinFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".tool-versions", "ruby 3.3.0\n")
	e := newTestEngine(t)

	p := e.prepare([]string{"ruby", "-v"}, &Command{Dir: dir})
	assert.Equal(t, []string{"mise", "exec", "--", "ruby", "-v"}, argvNames(p))

	// The tool itself is never wrapped through itself.
	p = e.prepare([]string{"mise", "ls"}, &Command{Dir: dir})
	assert.Equal(t, []string{"mise", "ls"}, argvNames(p))

	p = e.prepare([]string{"ruby"}, &Command{Dir: dir, NoVersionManager: true})
	assert.Equal(t, []string{"ruby"}, argvNames(p))
}

func TestPrepare_VersionManagerForcedWithoutPin(t *testing.T) {
	e := newTestEngine(t)

	p := e.prepare([]string{"ruby"}, &Command{ForceVersionManager: true})
	assert.Equal(t, []string{"mise", "exec", "--", "ruby"}, argvNames(p))
}

// Fixed composition order: dotenv loader outermost, version manager
// next, package manager innermost around the literal command.
func TestPrepare_WrapperOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Gemfile", "")
	writeFile(t, dir, ".tool-versions", "ruby 3.3.0\n")
	e := newTestEngine(t)

	p := e.prepare([]string{"rake", "db:migrate"}, &Command{Dir: dir, Dotenv: true})
	assert.Equal(t,
		[]string{"dotenvx", "run", "--", "mise", "exec", "--", "bundle", "exec", "rake", "db:migrate"},
		argvNames(p))
}

func TestPrepare_DotenvIsOptInOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "FOO=bar\n")
	e := newTestEngine(t)

	p := e.prepare([]string{"ls"}, &Command{Dir: dir})
	assert.Equal(t, []string{"ls"}, argvNames(p))
}

// A configured env file is passed to the loader ahead of the "--"
// separator, so the loader reads it instead of the command.
func TestPrepare_DotenvConfiguredFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Exec.DotenvFile = "/deploy/.env.production"
	e := New(cfg)

	p := e.prepare([]string{"ls"}, &Command{Dotenv: true})
	assert.Equal(t, []string{"dotenvx", "run", "-f", ".env.production", "--", "ls"}, argvNames(p))
	assert.Contains(t, p.argv, "/deploy/.env.production")
}

func TestPrepare_DotenvConfiguredFileCustomLoader(t *testing.T) {
	cfg := testConfig(t)
	cfg.Exec.DotenvFile = ".env.local"
	cfg.Exec.DotenvLoader = []string{"dotenv"}
	e := New(cfg)

	p := e.prepare([]string{"ls"}, &Command{Dotenv: true})
	assert.Equal(t, []string{"dotenv", "-f", ".env.local", "ls"}, argvNames(p))
}

func TestPrepare_RawSkipsEverything(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Gemfile", "")
	writeFile(t, dir, ".tool-versions", "ruby 3.3.0\n")
	t.Setenv("CMDRUN_AGENT_MODE", "1")
	e := newTestEngine(t)

	p := e.prepare([]string{"rake"}, &Command{Dir: dir, Raw: true, Dotenv: true})
	assert.Equal(t, []string{"rake"}, argvNames(p))
	assert.NotContains(t, envOf(p), "CMDRUN_CALL_TREE")
}

func TestPrepare_PollutionCleanup(t *testing.T) {
	t.Setenv("BUNDLE_GEMFILE", "/somewhere/Gemfile")
	t.Setenv("RUBYOPT", "-W0")
	e := newTestEngine(t)

	p := e.prepare([]string{"ls"}, nil)
	env := envOf(p)
	assert.NotContains(t, env, "BUNDLE_GEMFILE")
	assert.NotContains(t, env, "RUBYOPT")

	p = e.prepare([]string{"ls"}, &Command{KeepPollution: true})
	env = envOf(p)
	assert.Equal(t, "/somewhere/Gemfile", env["BUNDLE_GEMFILE"])
}

func TestPrepare_CallerEnvWinsOverEverything(t *testing.T) {
	t.Setenv("SHARED_VAR", "ambient")
	cfg := testConfig(t)
	cfg.Exec.Environment = map[string]string{"SHARED_VAR": "config", "CONFIG_ONLY": "yes"}
	e := New(cfg)

	p := e.prepare([]string{"ls"}, &Command{Env: map[string]string{"SHARED_VAR": "caller"}})
	env := envOf(p)
	assert.Equal(t, "caller", env["SHARED_VAR"])
	assert.Equal(t, "yes", env["CONFIG_ONLY"])
}

func TestPrepare_ContextEnvInjection(t *testing.T) {
	t.Setenv("CMDRUN_CALL_TREE", "root:parent")
	t.Setenv("CMDRUN_AGENT_MODE", "1")
	e := newTestEngine(t)

	p := e.prepare([]string{"ls"}, &Command{Name: "child"})
	env := envOf(p)
	assert.Equal(t, "root:parent:child", env["CMDRUN_CALL_TREE"])
	assert.Equal(t, "1", env["CMDRUN_AGENT_MODE"])

	// Opting out leaves the inherited chain unextended.
	p = e.prepare([]string{"ls"}, &Command{Name: "child", NoContextEnv: true})
	assert.Equal(t, "root:parent", envOf(p)["CMDRUN_CALL_TREE"])
}

func TestPrepare_PathBehavior(t *testing.T) {
	real := os.Getenv("PATH")

	cfg := testConfig(t)
	cfg.Exec.SearchPaths = []string{"/test/one", "/test/two"}
	e := New(cfg)
	env := envOf(e.prepare([]string{"ls"}, nil))
	assert.True(t, strings.HasPrefix(env["PATH"],
		"/test/one"+string(os.PathListSeparator)+"/test/two"+string(os.PathListSeparator)))
	assert.Contains(t, env["PATH"], real)

	cfg = testConfig(t)
	cfg.Exec.SearchPaths = []string{"/test/one"}
	cfg.Exec.PathBehavior = "replace"
	e = New(cfg)
	env = envOf(e.prepare([]string{"ls"}, nil))
	assert.Equal(t, "/test/one", env["PATH"])

	cfg = testConfig(t)
	cfg.Exec.SearchPaths = []string{"/test/one"}
	cfg.Exec.PathBehavior = "append"
	e = New(cfg)
	env = envOf(e.prepare([]string{"ls"}, nil))
	assert.True(t, strings.HasSuffix(env["PATH"], string(os.PathListSeparator)+"/test/one"))
}

func TestPrepare_ResolvesBinaryFromSearchPaths(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "mytool")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

	cfg := testConfig(t)
	cfg.Exec.SearchPaths = []string{dir}
	e := New(cfg)

	p := e.prepare([]string{"mytool"}, nil)
	assert.Equal(t, bin, p.argv[0])
}
