package main

import (
	"github.com/cnosuke/cmdrun/cmd"
)

var (
	// Version and Revision are replaced when building.
	// To set specific version, edit Makefile.
	Version  = "0.0.1"
	Revision = "xxx"

	Name = "cmdrun"
)

func main() {
	cmd.Execute(Name, Version, Revision)
}
