// Command humane runs test snippets inside HTML pages.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/humane/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
