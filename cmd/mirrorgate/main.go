// mirrorgate runs the terminal identity gate.
package main

import (
	"fmt"
	"os"

	"mirrorgate/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mirrorgate:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
