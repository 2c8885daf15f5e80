// Package cli wires the warren binary: it parses the subcommand, resolves
// configuration, and runs the relay or the agent until a signal arrives.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Run is the main entry point. It dispatches to a subcommand and returns
// the process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(args) == 0 {
		printUsage()
		return 1
	}

	switch args[0] {
	case "relay":
		return runRelay(ctx, args[1:])
	case "agent":
		return runAgent(ctx, args[1:])
	case "version", "--version", "-v":
		printVersion()
		return 0
	case "-h", "--help", "help":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		return 1
	}
}
