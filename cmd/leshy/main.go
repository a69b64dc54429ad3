package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/leshy-dns/leshy/internal/cliapp"
	"github.com/leshy-dns/leshy/internal/server"
)

// version is set by ldflags during build.
var version = "dev"

func main() {
	cliapp.Version = version
	os.Exit(run())
}

// run maps the command's outcome to leshy's exit codes: 0 clean
// shutdown, 1 config error, 2 bind failure, 3 unrecoverable backend
// initialization failure.
func run() int {
	root := cliapp.NewRootCommand()
	err := root.Execute()
	if err == nil {
		return 0
	}

	fmt.Fprintf(os.Stderr, "leshy: %v\n", err)

	switch {
	case errors.Is(err, server.ErrBackendInit):
		return 3
	case errors.Is(err, server.ErrBind):
		return 2
	case errors.Is(err, server.ErrConfig):
		return 1
	default:
		return 1
	}
}
