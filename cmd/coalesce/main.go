// Package main provides the coalesce CLI entrypoint.
//
// Usage:
//
//	coalesce master [options] [peer_ip:port ...]
//	coalesce worker [options] <port>
//
// Exit codes:
//   - 0: graceful shutdown
//   - 1: I/O or protocol error
//   - 2: configuration error
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/coalesce/cli/cmd"
	"github.com/pithecene-io/coalesce/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "coalesce",
		Usage:          "Distributed sharded union-find service",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.MasterCommand(),
			cmd.WorkerCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// Reached only for errors exitErrHandler did not terminate on.
		os.Exit(1)
	}
}

// exitErrHandler maps command errors to process exit codes, honoring the
// code carried by cli.Exit and defaulting everything else to 1.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	code := 1
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		code = coder.ExitCode()
	}

	// cli.Exit("", n) stringifies as "exit status n"; that placeholder is
	// not worth printing.
	if msg := err.Error(); msg != "" && msg != fmt.Sprintf("exit status %d", code) {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}
