// Command objectagent finds, queries and persists objects through the
// agents declared in its config file.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/objectagent/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		// ExitErrors were already reported by the command.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
