// Command orgadmin administers campus organizations: point distributions,
// bulk membership actions and lookup queries over a SQLite database.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/orgadmin/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || !exitErr.Reported() {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
