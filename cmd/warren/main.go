// Command warren runs the two halves of the tunnel: the public relay and
// the agent that exposes a local HTTP server through it.
package main

import (
	"os"

	"github.com/warrenhq/warren/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
