// Command comanda runs the chat order engine.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/comanda/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
