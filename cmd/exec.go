package cmd

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/cnosuke/cmdrun/config"
	"github.com/cnosuke/cmdrun/executor"
	"github.com/cnosuke/cmdrun/logger"
	"github.com/cnosuke/cmdrun/types"
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Value:   DefaultConfigPath,
			Usage:   "path to the configuration file",
		},
		&cli.StringFlag{
			Name:  "dir",
			Usage: "working directory for the command",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "extra environment variable (KEY=VALUE), repeatable",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "soft deadline before signal escalation",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "invocation name for call-tree propagation",
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "skip the wrapper chain entirely",
		},
		&cli.BoolFlag{
			Name:  "no-bundler",
			Usage: "disable the package-manager wrapper",
		},
		&cli.BoolFlag{
			Name:  "force-bundler",
			Usage: "wrap through the package manager even off the allow-list",
		},
		&cli.BoolFlag{
			Name:  "no-version-manager",
			Usage: "disable the version-manager wrapper",
		},
		&cli.BoolFlag{
			Name:  "force-version-manager",
			Usage: "wrap through the version manager even without a pin file",
		},
		&cli.BoolFlag{
			Name:  "dotenv",
			Usage: "prefix the command with the dotenv loader",
		},
		&cli.BoolFlag{
			Name:  "keep-pollution",
			Usage: "keep inherited package-manager environment variables",
		},
	}
}

// setup loads configuration, initializes logging and builds the engine.
func setup(c *cli.Context) (*executor.Engine, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration file")
	}
	if err := logger.InitLogger(cfg.Debug, cfg.Log); err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}
	return executor.New(cfg), nil
}

// buildCommand maps CLI flags onto the engine's typed options.
func buildCommand(c *cli.Context) *executor.Command {
	env := make(map[string]string)
	for _, kv := range c.StringSlice("env") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			env[parts[0]] = parts[1]
		}
	}
	return &executor.Command{
		Env:                 env,
		Dir:                 c.String("dir"),
		Name:                c.String("name"),
		Timeout:             c.Duration("timeout"),
		Raw:                 c.Bool("raw"),
		NoBundler:           c.Bool("no-bundler"),
		ForceBundler:        c.Bool("force-bundler"),
		NoVersionManager:    c.Bool("no-version-manager"),
		ForceVersionManager: c.Bool("force-version-manager"),
		Dotenv:              c.Bool("dotenv"),
		KeepPollution:       c.Bool("keep-pollution"),
	}
}

// NewRunCommand runs a command in the foreground with inherited stdio.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a command in the foreground",
		Flags:     commonFlags(),
		ArgsUsage: "COMMAND [ARGS...]",
		Action: func(c *cli.Context) error {
			engine, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			res, err := engine.Run(c.Args().Slice(), buildCommand(c))
			if err != nil {
				return err
			}
			reportStartFailure(res)
			res.ExitOnFailure()
			return nil
		},
	}
}

// NewCaptureCommand runs a command and prints the captured streams.
func NewCaptureCommand() *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "Run a command and capture its output",
		Flags:     commonFlags(),
		ArgsUsage: "COMMAND [ARGS...]",
		Action: func(c *cli.Context) error {
			engine, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			res, err := engine.Capture(c.Args().Slice(), buildCommand(c))
			if err != nil {
				return err
			}
			reportStartFailure(res)
			fmt.Print(res.CapturedStdout())
			fmt.Fprint(cli.ErrWriter, res.CapturedStderr())
			res.ExitOnFailure()
			return nil
		},
	}
}

// NewShellCommand runs a command line through the shell.
func NewShellCommand() *cli.Command {
	return &cli.Command{
		Name:      "shell",
		Usage:     "Run a command line through the shell",
		Flags:     commonFlags(),
		ArgsUsage: "COMMAND_LINE",
		Action: func(c *cli.Context) error {
			engine, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			res, err := engine.Shell(strings.Join(c.Args().Slice(), " "), buildCommand(c))
			if err != nil {
				return err
			}
			reportStartFailure(res)
			res.ExitOnFailure()
			return nil
		},
	}
}

// NewSpawnCommand starts a background process and prints its pid.
func NewSpawnCommand() *cli.Command {
	return &cli.Command{
		Name:      "spawn",
		Usage:     "Start a command in the background and print its pid",
		Flags:     commonFlags(),
		ArgsUsage: "COMMAND [ARGS...]",
		Action: func(c *cli.Context) error {
			engine, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctl, err := engine.Spawn(c.Args().Slice(), buildCommand(c))
			if err != nil {
				return err
			}
			zap.S().Infow("spawned", "name", ctl.Name, "pid", ctl.Pid)
			fmt.Println(ctl.Pid)
			return nil
		},
	}
}

// NewReplaceCommand replaces this process with the command.
func NewReplaceCommand() *cli.Command {
	return &cli.Command{
		Name:      "replace",
		Usage:     "Replace this process with the command",
		Flags:     commonFlags(),
		ArgsUsage: "COMMAND [ARGS...]",
		Action: func(c *cli.Context) error {
			engine, err := setup(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			// Only returns on failure.
			return engine.Replace(c.Args().Slice(), buildCommand(c))
		},
	}
}

// reportStartFailure surfaces why a process could not start, distinct
// from a normal nonzero exit.
func reportStartFailure(res *types.Result) {
	if !res.FailedToStart() {
		return
	}
	zap.S().Errorw("command failed to start",
		"command", res.Command,
		"error", res.StartErr)
	fmt.Fprintf(cli.ErrWriter, "failed to start %v: %v\n", res.Command, res.StartErr)
}
