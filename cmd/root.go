package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	DefaultConfigPath = "config.yml"
)

// Execute runs the root command
func Execute(name, version, revision string) {
	// Local overrides first; a missing .env is not an error.
	_ = godotenv.Load()

	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s (%s)", version, revision)
	app.Name = name
	app.Usage = "command-execution engine for developer tools"

	// Add subcommands
	app.Commands = []*cli.Command{
		NewRunCommand(),
		NewCaptureCommand(),
		NewShellCommand(),
		NewSpawnCommand(),
		NewReplaceCommand(),
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
