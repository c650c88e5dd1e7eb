// Command posepipe annotates frame streams with body poses in parallel and
// emits them in input order.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/posepipe/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
